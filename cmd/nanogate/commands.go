package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	nano "github.com/nanopay/nanogate/pkg"
)

/*
	These commands are convenience CLI tools that operate on a
	running nanogate by calling its REST API.
*/

// ExpireInvoice asks a running nanogate to expire an invoice, which
// releases the invoice's watched address and stops its pollers.
func ExpireInvoice(invoiceID string, c nano.Config) error {
	url, err := apiURL(c, fmt.Sprintf("/invoice/%s/expire", invoiceID))
	if err != nil {
		return err
	}
	fmt.Println("Calling", url)
	return postURL(url, "")
}

// work out the remote API URL from config and return a complete path
func apiURL(c nano.Config, path string) (string, error) {
	host := c.WebAPI.Bind
	if host == "" {
		host = "localhost"
	}
	base := fmt.Sprintf("http://%s:%s/", host, c.WebAPI.Port)

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	p, err := url.Parse(path)
	if err != nil {
		return "", err
	}

	return u.ResolveReference(p).String(), nil
}

// post a command to a remote nanogate API
func postURL(url string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to serialize request body: %v", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status code: %d", resp.StatusCode)
	}

	return nil
}
