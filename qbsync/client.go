package qbsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultPageSize = 100

type qbClient struct {
	baseURL string
	realmId string
	token   string
	http    *http.Client
	limiter <-chan time.Time
}

func newQBClient(realmId string, token string) (*qbClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("QB_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://quickbooks.api.intuit.com"
	}
	if strings.TrimSpace(realmId) == "" {
		return nil, errors.New("quickbooks realm id is empty")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("quickbooks access token is empty")
	}
	rateLimitPerMin := int64(300)
	if v := strings.TrimSpace(os.Getenv("QB_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &qbClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		realmId: realmId,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}, nil
}

// qbEmail, qbPhone and qbAddress are pointer-valued on qbCustomer so that
// absent optional fields are pruned from the payload entirely; the API
// rejects explicit nulls for optional fields.
type qbEmail struct {
	Address string `json:"Address"`
}

type qbPhone struct {
	FreeFormNumber string `json:"FreeFormNumber"`
}

type qbAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type qbCustomer struct {
	Id               string     `json:"Id,omitempty"`
	SyncToken        string     `json:"SyncToken,omitempty"`
	DisplayName      string     `json:"DisplayName,omitempty"`
	CompanyName      string     `json:"CompanyName,omitempty"`
	GivenName        string     `json:"GivenName,omitempty"`
	FamilyName       string     `json:"FamilyName,omitempty"`
	PrimaryEmailAddr *qbEmail   `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone     *qbPhone   `json:"PrimaryPhone,omitempty"`
	Mobile           *qbPhone   `json:"Mobile,omitempty"`
	BillAddr         *qbAddress `json:"BillAddr,omitempty"`
	Notes            string     `json:"Notes,omitempty"`
	Active           *bool      `json:"Active,omitempty"`
	Sparse           bool       `json:"sparse,omitempty"`
}

type qbItem struct {
	Id          string      `json:"Id"`
	SyncToken   string      `json:"SyncToken"`
	Name        string      `json:"Name"`
	Description string      `json:"Description"`
	Type        string      `json:"Type"`
	UnitPrice   json.Number `json:"UnitPrice"`
	QtyOnHand   json.Number `json:"QtyOnHand"`
	Taxable     *bool       `json:"Taxable"`
	Active      *bool       `json:"Active"`
	Sku         string      `json:"Sku"`
}

type qbQueryResponse struct {
	Customer      []qbCustomer `json:"Customer"`
	Item          []qbItem     `json:"Item"`
	StartPosition int          `json:"startPosition"`
	MaxResults    int          `json:"maxResults"`
}

type qbFault struct {
	Error []struct {
		Message string `json:"Message"`
		Detail  string `json:"Detail"`
		Code    string `json:"code"`
	} `json:"Error"`
}

// qbEnvelope covers both response shapes the API produces: the query wrapper
// {"QueryResponse": {...}} and the single-entity wrapper {"Customer": {...}}.
type qbEnvelope struct {
	QueryResponse *qbQueryResponse `json:"QueryResponse"`
	Customer      json.RawMessage  `json:"Customer"`
	Item          json.RawMessage  `json:"Item"`
	Fault         *qbFault         `json:"Fault"`
}

func (c *qbClient) do(ctx context.Context, method string, path string, params url.Values, body []byte) ([]byte, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("quickbooks api error %d: %s", resp.StatusCode, faultMessage(respBody))
	}
	return respBody, nil
}

func faultMessage(body []byte) string {
	var envelope qbEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Fault != nil && len(envelope.Fault.Error) > 0 {
		e := envelope.Fault.Error[0]
		if e.Detail != "" {
			return e.Message + ": " + e.Detail
		}
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

// query runs one page of a data query. startPosition is 1-based per the API.
func (c *qbClient) query(ctx context.Context, stmt string, startPosition int, maxResults int) (*qbQueryResponse, error) {
	paged := fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", stmt, startPosition, maxResults)
	params := url.Values{}
	params.Set("query", paged)

	body, err := c.do(ctx, http.MethodGet, "/v3/company/"+c.realmId+"/query", params, nil)
	if err != nil {
		return nil, err
	}

	var envelope qbEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.QueryResponse == nil {
		return &qbQueryResponse{}, nil
	}
	return envelope.QueryResponse, nil
}

// createCustomer and updateCustomer share the customer write endpoint; the
// API distinguishes them by the presence of Id + SyncToken in the payload.
// Both return the written-back customer and the raw response snapshot.
func (c *qbClient) createCustomer(ctx context.Context, payload qbCustomer) (qbCustomer, []byte, error) {
	return c.writeCustomer(ctx, payload)
}

func (c *qbClient) updateCustomer(ctx context.Context, payload qbCustomer) (qbCustomer, []byte, error) {
	if strings.TrimSpace(payload.Id) == "" {
		return qbCustomer{}, nil, errors.New("update requires a quickbooks id")
	}
	return c.writeCustomer(ctx, payload)
}

func (c *qbClient) writeCustomer(ctx context.Context, payload qbCustomer) (qbCustomer, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return qbCustomer{}, nil, err
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v3/company/"+c.realmId+"/customer", nil, reqBody)
	if err != nil {
		return qbCustomer{}, nil, err
	}

	customer, err := decodeCustomerResponse(respBody)
	if err != nil {
		return qbCustomer{}, respBody, err
	}
	return customer, respBody, nil
}

// decodeCustomerResponse accepts both the single-entity wrapper and the query
// wrapper; a just-written customer can come back in either shape.
func decodeCustomerResponse(body []byte) (qbCustomer, error) {
	var envelope qbEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return qbCustomer{}, err
	}
	if envelope.QueryResponse != nil && len(envelope.QueryResponse.Customer) > 0 {
		return envelope.QueryResponse.Customer[0], nil
	}
	if len(envelope.Customer) > 0 {
		var customer qbCustomer
		if err := json.Unmarshal(envelope.Customer, &customer); err != nil {
			return qbCustomer{}, err
		}
		return customer, nil
	}
	return qbCustomer{}, errors.New("response contains no customer")
}

func (c *qbClient) queryCustomers(ctx context.Context, startPosition int, maxResults int) ([]qbCustomer, error) {
	resp, err := c.query(ctx, "SELECT * FROM Customer", startPosition, maxResults)
	if err != nil {
		return nil, err
	}
	return resp.Customer, nil
}

func (c *qbClient) queryItems(ctx context.Context, startPosition int, maxResults int) ([]qbItem, error) {
	resp, err := c.query(ctx, "SELECT * FROM Item", startPosition, maxResults)
	if err != nil {
		return nil, err
	}
	return resp.Item, nil
}
