package market

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type quoteJSON struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

// QuoteHandler accepts POSTed quotes for ps. The body is one quote object
// or an array of them; a missing time means now. GET returns the current
// snapshot.
func QuoteHandler(ps *PriceStore, now func() time.Time) http.Handler {
	if now == nil {
		now = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ps.Snapshot())
			return
		case http.MethodPost:
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var batch []quoteJSON
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		raw := json.RawMessage{}
		if err := dec.Decode(&raw); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			if err := json.Unmarshal(raw, &batch); err != nil {
				http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			var one quoteJSON
			if err := json.Unmarshal(raw, &one); err != nil {
				http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
				return
			}
			batch = append(batch, one)
		}

		var bad []string
		for _, q := range batch {
			if q.Time.IsZero() {
				q.Time = now()
			}
			if err := ps.Set(Quote{Symbol: q.Symbol, Price: q.Price, Time: q.Time}); err != nil {
				bad = append(bad, err.Error())
			}
		}
		if len(bad) > 0 {
			http.Error(w, fmt.Sprintf("%d of %d quotes rejected: %s", len(bad), len(batch), strings.Join(bad, "; ")), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
