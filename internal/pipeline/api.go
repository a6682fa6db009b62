package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"market-features/internal/logger"
	"market-features/internal/profile"
)

// ProfileChannel carries profile names to activate from the loaded set.
const ProfileChannel = "config:profile"

// Routes registers /reload and /run on mux.
func (s *Service) Routes(mux interface {
	Handle(pattern string, h http.Handler)
}) {
	mux.Handle("/reload", http.HandlerFunc(s.handleReload))
	mux.Handle("/run", http.HandlerFunc(s.handleRun))
}

type profileResponse struct {
	Status     string   `json:"status"`
	Profile    string   `json:"profile"`
	Source     string   `json:"source"`
	CausalOnly bool     `json:"causal_only"`
	MinBars    int      `json:"min_bars"`
	Columns    []string `json:"columns"`
}

func describe(c *profile.Compiled) profileResponse {
	return profileResponse{
		Status:     "ok",
		Profile:    c.Name,
		Source:     c.Source,
		CausalOnly: c.CausalOnly,
		MinBars:    c.MinBars,
		Columns:    c.Columns,
	}
}

// handleReload serves GET (active profile) and POST (replace it). The POST
// body is a profile in JSON; omitted params keep their defaults.
func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, describe(s.Active()))
	case http.MethodPost:
		p, err := profile.DecodeJSON(r.Body)
		if err != nil {
			http.Error(w, "invalid profile: "+err.Error(), http.StatusBadRequest)
			return
		}
		c, err := s.Reload(p)
		if err != nil {
			http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, describe(c))
	default:
		http.Error(w, "GET or POST only", http.StatusMethodNotAllowed)
	}
}

// handleRun triggers a batch and blocks until it finishes.
func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	run, err := s.RunBatch(r.Context())
	switch {
	case errors.Is(err, ErrBatchRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil && run.RunID == "":
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// SubscribeProfiles activates profiles named on ProfileChannel until ctx is
// done. Unknown names and invalid profiles are logged and ignored.
func (s *Service) SubscribeProfiles(ctx context.Context, rdb *goredis.Client, set *profile.Set) {
	log := logger.For(ctx, "pipeline")
	pubsub := rdb.Subscribe(ctx, ProfileChannel)
	go func() {
		defer pubsub.Close()
		log.Info("listening for profile changes", zap.String("channel", ProfileChannel))
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if _, err := s.activate(set, msg.Payload); err != nil {
					log.Warn("profile change ignored", zap.String("payload", msg.Payload), zap.Error(err))
				}
			}
		}
	}()
}

func (s *Service) activate(set *profile.Set, name string) (*profile.Compiled, error) {
	p, err := set.Get(name)
	if err != nil {
		return nil, err
	}
	return s.Reload(p)
}
