package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *apiClient) post(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// API response shapes, mirroring the server's JSON.

type balanceDTO struct {
	AsOf    string `json:"as_of"`
	Balance string `json:"balance"`
	Cents   int64  `json:"cents"`
}

type transactionDTO struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Cents      int64  `json:"cents"`
	Date       string `json:"date"`
	CategoryID string `json:"category_id"`
	Memo       string `json:"memo"`
	Source     string `json:"source"`
}

type categoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type budgetDTO struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	PeriodKind string `json:"period_kind"`
	Limit      string `json:"limit"`
	Thresholds []int  `json:"thresholds"`
	Active     bool   `json:"active"`
}

type moneyDTO struct {
	Cents int64 `json:"Cents"`
}

func (m moneyDTO) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

type budgetStatusDTO struct {
	Consumed   moneyDTO `json:"consumed"`
	Remaining  moneyDTO `json:"remaining"`
	Percentage float64  `json:"percentage"`
	Fired      []int    `json:"fired_thresholds"`
	Status     string   `json:"status"`
}

type goalDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Target     string `json:"target"`
	TargetDate string `json:"target_date"`
}

type goalProgressDTO struct {
	Accumulated moneyDTO `json:"accumulated"`
	Remaining   moneyDTO `json:"remaining"`
	Percentage  float64  `json:"percentage"`
	Milestones  []int    `json:"milestones"`
	OnTrack     bool     `json:"on_track"`
}

type upcomingDTO struct {
	TemplateID string `json:"template_id"`
	Date       string `json:"date"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
}

type importRowDTO struct {
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	CategoryHint string `json:"category_hint,omitempty"`
}

type importReportDTO struct {
	Report struct {
		Results []struct {
			Index  int    `json:"index"`
			Status string `json:"status"`
			Reason string `json:"reason"`
		} `json:"results"`
		Inserted   int `json:"inserted"`
		Duplicates int `json:"duplicates"`
		Conflicts  int `json:"conflicts"`
		Rejected   int `json:"rejected"`
	} `json:"report"`
	ParseErrors []string `json:"parse_errors"`
}

func (c *apiClient) categoryNames() (map[string]string, error) {
	var cats []categoryDTO
	if err := c.get("/api/categories?deleted=true", &cats); err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, cat := range cats {
		names[cat.ID] = cat.Name
	}
	return names, nil
}
