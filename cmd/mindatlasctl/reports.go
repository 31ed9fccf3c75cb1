package main

import (
	"fmt"
	"io"
	"net/http"
)

func reportPath(period, op string) (string, error) {
	switch period {
	case "weekly", "monthly":
	default:
		return "", fmt.Errorf("invalid period %q: must be weekly or monthly", period)
	}
	return "/api/reports/" + period + op, nil
}

func runReportsLatest(apiURL, period string, out io.Writer) error {
	path, err := reportPath(period, "/latest")
	if err != nil {
		return err
	}
	resp, err := http.Get(apiURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

func runReportsGenerate(apiURL, period string, out io.Writer) error {
	path, err := reportPath(period, "/generate")
	if err != nil {
		return err
	}
	resp, err := http.Post(apiURL+path, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}
