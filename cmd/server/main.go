package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/carbonchain/carbon-credit-ledger/internal/chain"
	"github.com/carbonchain/carbon-credit-ledger/internal/config"
	"github.com/carbonchain/carbon-credit-ledger/internal/events/kafka"
	"github.com/carbonchain/carbon-credit-ledger/internal/interfaces"
	"github.com/carbonchain/carbon-credit-ledger/internal/models"
	"github.com/carbonchain/carbon-credit-ledger/internal/storage/leveldb"
	"github.com/carbonchain/carbon-credit-ledger/internal/storage/memory"
	"github.com/carbonchain/carbon-credit-ledger/internal/storage/postgres"
)

func main() {

	cfg := config.Load()

	var store interfaces.ChainStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open postgres: ", err)
		}
		store = postgres.NewPostgresChainStore(db)
	case config.BackendLevelDB:
		ldb, err := leveldb.Open(cfg.LevelDBPath)
		if err != nil {
			log.Fatal("open leveldb: ", err)
		}
		defer ldb.Close()
		store = ldb
	default:
		store = memory.NewMemoryChainStore()
	}

	opts := []chain.Option{chain.WithSealThreshold(cfg.SealThreshold)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers, "block_sealed")
		defer publisher.Close()
		opts = append(opts, chain.WithPublisher(publisher))
	}

	ledger := chain.New(context.Background(), store, opts...)

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Submit a raw transaction into the pending buffer. Seals automatically
	// once the batching threshold is reached.
	http.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Sender      string          `json:"sender"`
			Recipient   string          `json:"recipient"`
			Amount      decimal.Decimal `json:"amount"`
			ProjectRef  *int64          `json:"project_ref"`
			Kind        string          `json:"kind"`
			Metadata    map[string]any  `json:"metadata"`
			ExternalRef string          `json:"external_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		tx, err := models.NewTransaction(req.Sender, req.Recipient, req.Amount, req.ProjectRef, models.TxKind(req.Kind))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tx.Metadata = req.Metadata
		tx.ExternalRef = req.ExternalRef

		nextIndex, err := ledger.Submit(r.Context(), tx)
		if err != nil {
			writeChainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(struct {
			NextIndex int64 `json:"next_index"`
			Pending   int   `json:"pending"`
		}{
			NextIndex: nextIndex,
			Pending:   ledger.PendingCount(),
		})
	})

	http.HandleFunc("/credits/issue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Recipient  string          `json:"recipient"`
			Amount     decimal.Decimal `json:"amount"`
			ProjectRef *int64          `json:"project_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		block, err := ledger.IssueCredits(r.Context(), req.Recipient, req.Amount, req.ProjectRef)
		writeBlock(w, block, err)
	})

	http.HandleFunc("/credits/mint", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Recipient   string          `json:"recipient"`
			Amount      decimal.Decimal `json:"amount"`
			ProjectRef  *int64          `json:"project_ref"`
			ExternalRef string          `json:"external_ref"`
			Metadata    map[string]any  `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		block, err := ledger.MintCredits(r.Context(), req.Recipient, req.Amount, req.ProjectRef, req.ExternalRef, req.Metadata)
		writeBlock(w, block, err)
	})

	http.HandleFunc("/credits/transfer", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Sender     string          `json:"sender"`
			Recipient  string          `json:"recipient"`
			Amount     decimal.Decimal `json:"amount"`
			ProjectRef *int64          `json:"project_ref"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		block, err := ledger.TransferCredits(r.Context(), req.Sender, req.Recipient, req.Amount, req.ProjectRef)
		writeBlock(w, block, err)
	})

	http.HandleFunc("/chain/seal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		block, err := ledger.Seal(r.Context())
		writeBlock(w, block, err)
	})

	http.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ledger.Blocks())
	})

	http.HandleFunc("/chain/last", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		block, err := ledger.LastBlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(block)
	})

	http.HandleFunc("/chain/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := ledger.Validate(); err != nil {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(struct {
				Valid bool   `json:"valid"`
				Error string `json:"error"`
			}{Valid: false, Error: err.Error()})
			return
		}
		json.NewEncoder(w).Encode(struct {
			Valid  bool `json:"valid"`
			Blocks int  `json:"blocks"`
		}{Valid: true, Blocks: ledger.Length()})
	})

	http.HandleFunc("/accounts/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		address := r.URL.Query().Get("address")
		if address == "" {
			http.Error(w, "address is a mandatory field", http.StatusBadRequest)
			return
		}

		response := struct {
			Address string          `json:"address"`
			Balance decimal.Decimal `json:"balance"`
		}{
			Address: address,
			Balance: ledger.Balance(address),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/projects/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		raw := r.URL.Query().Get("project_ref")
		projectRef, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "project_ref must be an integer", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ledger.TransactionsByProject(projectRef))
	})

	log.Println("Starting server on " + cfg.Addr + " (store=" + cfg.StoreBackend + ")")
	log.Fatal(http.ListenAndServe(cfg.Addr, nil))

}

// writeBlock renders sealed-block responses, distinguishing rejected
// transactions from blocks that were sealed in memory but not persisted.
func writeBlock(w http.ResponseWriter, block *models.Block, err error) {
	if err != nil && block == nil {
		writeChainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusCreated
	if err != nil {
		// Sealed in memory only; tell the caller the write was not durable.
		status = http.StatusAccepted
		w.Header().Set("X-Persistence-Error", err.Error())
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(block)
}

func writeChainError(w http.ResponseWriter, err error) {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var persistence *chain.PersistenceError
	if errors.As(err, &persistence) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	http.Error(w, err.Error(), http.StatusInternalServerError)
}
