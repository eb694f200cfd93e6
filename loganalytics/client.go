package loganalytics

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/noblevarghese/Microsft-Purview-Advanced-Rich-Reports-MPARR-Collector/utils"
)

const apiVersion = "2016-04-01"
const resourcePath = "/api/logs"
const contentType = "application/json"

type ClientConfig struct {
	ClientOptions utils.ClientOptions `json:"-" yaml:"-"`
	WorkspaceID   string              `json:"workspace_id" yaml:"workspace_id"`
	// SharedKey is the base64-encoded workspace primary or secondary key.
	SharedKey   string `json:"shared_key" yaml:"shared_key"`
	TargetTable string `json:"target_table" yaml:"target_table"`
	// Endpoint overrides the default
	// https://{workspace_id}.ods.opinsights.azure.com URL. Used by tests.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// MaxBatchBytes, when non-zero, splits a batch whose serialized payload
	// would exceed this many bytes into sequential sub-submissions. Zero
	// submits the whole batch in a single request.
	MaxBatchBytes int `json:"max_batch_bytes" yaml:"max_batch_bytes"`
}

func (c *ClientConfig) Validate() error {
	if c.WorkspaceID == "" {
		return errors.New("missing workspace_id")
	}
	if c.SharedKey == "" {
		return errors.New("missing shared_key")
	}
	if c.TargetTable == "" {
		return errors.New("missing target_table")
	}
	if _, err := base64.StdEncoding.DecodeString(c.SharedKey); err != nil {
		return fmt.Errorf("shared_key is not valid base64: %v", err)
	}
	return nil
}

// SubmitResult reports the outcome of a successful submission.
type SubmitResult struct {
	RowsWritten int
}

// SubmitError is returned when the ingestion endpoint answers anything but
// HTTP 200. The response body is carried for diagnostics.
type SubmitError struct {
	StatusCode int
	Body       string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("log ingestion api non-200: %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	conf       ClientConfig
	key        []byte
	endpoint   string
	httpClient *http.Client
}

func NewClient(conf ClientConfig) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.ClientOptions = conf.ClientOptions.WithDefaults()

	key, err := base64.StdEncoding.DecodeString(conf.SharedKey)
	if err != nil {
		return nil, fmt.Errorf("shared_key is not valid base64: %v", err)
	}

	endpoint := conf.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.ods.opinsights.azure.com", conf.WorkspaceID)
	}

	return &Client{
		conf:     conf,
		key:      key,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				Dial: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).Dial,
			},
		},
	}, nil
}

// Submit serializes the records to a JSON array, signs the request and POSTs
// it to the workspace. An empty batch is a no-op success: no HTTP call is
// made. A single attempt is made per payload, there is no retry.
func (c *Client) Submit(records []interface{}) (SubmitResult, error) {
	if len(records) == 0 {
		c.conf.ClientOptions.DebugLog("no records to submit, skipping")
		return SubmitResult{}, nil
	}

	if c.conf.MaxBatchBytes > 0 {
		return c.submitChunked(records)
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("json.Marshal(): %v", err)
	}
	if err := c.submitPayload(payload); err != nil {
		return SubmitResult{}, err
	}
	c.conf.ClientOptions.DebugLog(fmt.Sprintf("submitted %d records to table %s", len(records), c.conf.TargetTable))
	return SubmitResult{RowsWritten: len(records)}, nil
}

func (c *Client) submitChunked(records []interface{}) (SubmitResult, error) {
	res := SubmitResult{}
	chunk := []json.RawMessage{}
	chunkSize := 2

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("json.Marshal(): %v", err)
		}
		if err := c.submitPayload(payload); err != nil {
			return err
		}
		res.RowsWritten += len(chunk)
		chunk = chunk[:0]
		chunkSize = 2
		return nil
	}

	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return res, fmt.Errorf("json.Marshal(): %v", err)
		}
		if len(chunk) != 0 && chunkSize+len(b)+1 > c.conf.MaxBatchBytes {
			if err := flush(); err != nil {
				return res, err
			}
		}
		chunk = append(chunk, b)
		chunkSize += len(b) + 1
	}
	if err := flush(); err != nil {
		return res, err
	}

	c.conf.ClientOptions.DebugLog(fmt.Sprintf("submitted %d records to table %s", res.RowsWritten, c.conf.TargetTable))
	return res, nil
}

func (c *Client) submitPayload(payload []byte) error {
	date := time.Now().UTC().Format(http.TimeFormat)
	auth := BuildSignature(c.conf.WorkspaceID, c.key, date, len(payload), "POST", contentType, resourcePath)

	url := fmt.Sprintf("%s%s?api-version=%s", c.endpoint, resourcePath, apiVersion)
	req, err := http.NewRequest("POST", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("http.NewRequest(): %v", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Log-Type", c.conf.TargetTable)
	req.Header.Set("x-ms-date", date)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http.Client.Do(): %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &SubmitError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}
