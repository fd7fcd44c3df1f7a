package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// HTTPClient speaks the record host's JSON admin dialect: /domain and
// /record resources, store credentials in every request body, errors
// reported in-band as an "error" field.
type HTTPClient struct {
	client *http.Client
	scheme string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithScheme overrides the URL scheme used to reach hosts.
func WithScheme(scheme string) Option {
	return func(h *HTTPClient) { h.scheme = scheme }
}

// NewHTTPClient returns a Client over the JSON admin dialect.
func NewHTTPClient(opts ...Option) *HTTPClient {
	h := &HTTPClient{
		client: &http.Client{Timeout: 15 * time.Second},
		scheme: "http",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ Client = (*HTTPClient)(nil)

type wireRecord struct {
	ID      json.Number `json:"id,omitempty"`
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Content string      `json:"content"`
	TTL     int         `json:"ttl,omitempty"`
}

type wireRequest struct {
	Username   string      `json:"dbUsername"`
	Password   string      `json:"dbPassword"`
	DomainName string      `json:"domainname,omitempty"`
	Record     *wireRecord `json:"record,omitempty"`
	ID         string      `json:"id,omitempty"`
}

type wireDomain struct {
	Name string `json:"name"`
}

type wireResponse struct {
	Error    string       `json:"error"`
	Result   string       `json:"result"`
	RecordID string       `json:"recordId"`
	Domains  []wireDomain `json:"domains"`
	Records  []wireRecord `json:"records"`
}

// ListDomains returns the names of all domains served by host.
func (h *HTTPClient) ListDomains(ctx context.Context, host Host) ([]string, error) {
	resp, err := h.call(ctx, http.MethodGet, host, "domain", wireRequest{
		Username: host.Username,
		Password: host.Password,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Domains))
	for _, d := range resp.Domains {
		names = append(names, d.Name)
	}
	return names, nil
}

// CreateDomain creates a domain on host.
func (h *HTTPClient) CreateDomain(ctx context.Context, host Host, domain string) error {
	_, err := h.call(ctx, http.MethodPost, host, "domain", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
	})
	return err
}

// RemoveDomain drops a domain from host.
func (h *HTTPClient) RemoveDomain(ctx context.Context, host Host, domain string) error {
	_, err := h.call(ctx, http.MethodDelete, host, "domain", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
	})
	return err
}

// ListRecords returns the current records of domain on host.
func (h *HTTPClient) ListRecords(ctx context.Context, host Host, domain string) ([]Record, error) {
	resp, err := h.call(ctx, http.MethodGet, host, "record", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
	})
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(resp.Records))
	for _, w := range resp.Records {
		r, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// CreateRecord inserts record into domain on host and returns the
// store-assigned numeric id.
func (h *HTTPClient) CreateRecord(ctx context.Context, host Host, domain string, record Record) (int64, error) {
	resp, err := h.call(ctx, http.MethodPost, host, "record", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
		Record:     toWire(record),
	})
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(resp.RecordID), 10, 64)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeRemoteStore, fmt.Sprintf("record store returned malformed record id %q", resp.RecordID), err)
	}
	return id, nil
}

// EditRecord rewrites the record identified by record.ID on host.
func (h *HTTPClient) EditRecord(ctx context.Context, host Host, domain string, record Record) error {
	_, err := h.call(ctx, http.MethodPut, host, "record", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
		Record:     toWire(record),
		ID:         strconv.FormatInt(record.ID, 10),
	})
	return err
}

// RemoveRecord deletes record from domain on host. The store matches on
// name, type and content.
func (h *HTTPClient) RemoveRecord(ctx context.Context, host Host, domain string, record Record) error {
	_, err := h.call(ctx, http.MethodDelete, host, "record", wireRequest{
		Username:   host.Username,
		Password:   host.Password,
		DomainName: domain,
		Record:     toWire(record),
	})
	return err
}

func (h *HTTPClient) call(ctx context.Context, method string, host Host, resource string, body wireRequest) (*wireResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemoteStore, "encode record store request", err)
	}
	url := fmt.Sprintf("%s://%s/%s", h.scheme, host.Address, resource)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemoteStore, "build record store request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json; charset=UTF-8")

	res, err := h.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemoteStore, fmt.Sprintf("record store %s %s unreachable", method, resource), err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemoteStore, "read record store response", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, apperrors.WithMetadata(
			apperrors.CodeRemoteStore,
			fmt.Sprintf("record store %s %s returned status %d", method, resource, res.StatusCode),
			map[string]string{"Remote": strings.TrimSpace(string(raw))},
		)
	}
	var resp wireResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemoteStore, "decode record store response", err)
	}
	if resp.Error != "" {
		return nil, apperrors.WithMetadata(
			apperrors.CodeRemoteStore,
			fmt.Sprintf("record store rejected %s %s: %s", method, resource, resp.Error),
			map[string]string{"Remote": resp.Error},
		)
	}
	return &resp, nil
}

func toWire(r Record) *wireRecord {
	w := &wireRecord{
		Name:    r.Name,
		Type:    r.Type,
		Content: r.Content,
		TTL:     r.TTL,
	}
	if r.ID != 0 {
		w.ID = json.Number(strconv.FormatInt(r.ID, 10))
	}
	return w
}

func fromWire(w wireRecord) (Record, error) {
	r := Record{
		Name:    w.Name,
		Type:    w.Type,
		Content: w.Content,
		TTL:     w.TTL,
	}
	if w.ID != "" {
		id, err := w.ID.Int64()
		if err != nil {
			return Record{}, apperrors.Wrap(apperrors.CodeRemoteStore, fmt.Sprintf("record store returned malformed record id %q", w.ID), err)
		}
		r.ID = id
	}
	return r, nil
}
