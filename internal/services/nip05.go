package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"badgehub/internal/appinfo"
	"badgehub/internal/nostr"
	"badgehub/internal/retry"

	"go.uber.org/zap"
)

// ErrIdentifierNotFound means a name@domain identifier has no key.
var ErrIdentifierNotFound = errors.New("identifier not registered")

// NIP05Resolver maps name@domain identifiers to public keys through the
// domain's /.well-known/nostr.json document.
type NIP05Resolver struct {
	client *http.Client
	policy retry.Policy
	logger *zap.Logger

	// Scheme is "https" unless overridden in tests.
	Scheme string
}

// NewNIP05Resolver creates a resolver. A nil client gets a 5 second timeout.
func NewNIP05Resolver(client *http.Client, logger *zap.Logger) *NIP05Resolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NIP05Resolver{
		client: client,
		policy: retry.Policy{MaxAttempts: 3, Interval: 250 * time.Millisecond, Strategy: retry.StrategyExponential},
		logger: logger,
		Scheme: "https",
	}
}

type nip05Document struct {
	Names map[string]string `json:"names"`
}

// Resolve returns the hex public key registered for identifier.
func (r *NIP05Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	name, domain, ok := strings.Cut(strings.TrimSpace(identifier), "@")
	if !ok || domain == "" {
		return "", fmt.Errorf("%w: %q is not name@domain", ErrInvalidKey, identifier)
	}
	if name == "" {
		name = "_"
	}
	name = strings.ToLower(name)

	endpoint := fmt.Sprintf("%s://%s/.well-known/nostr.json?name=%s", r.Scheme, domain, url.QueryEscape(name))

	var doc nip05Document
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", appinfo.UserAgent())

		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("nip05 %s: status %d", domain, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("%w: %s returned status %d", ErrIdentifierNotFound, domain, resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return retry.Permanent(fmt.Errorf("nip05 %s: %w", domain, err))
		}
		return nil
	}, func(err error, next time.Duration) {
		r.logger.Debug("NIP-05 lookup failed, retrying",
			zap.String("identifier", identifier),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return "", err
	}

	key, ok := doc.Names[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrIdentifierNotFound, identifier)
	}
	key = strings.ToLower(key)
	if !nostr.IsHexKey(key) {
		return "", fmt.Errorf("%w: %s maps to malformed key", ErrInvalidKey, identifier)
	}
	return key, nil
}
