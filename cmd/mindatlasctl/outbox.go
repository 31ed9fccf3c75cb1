package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

func runOutboxLS(apiURL string, limit int, out io.Writer) error {
	u := apiURL + "/api/admin/outbox/dead?" + url.Values{
		"limit": {fmt.Sprint(limit)},
	}.Encode()

	resp, err := http.Get(u)
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

func runOutboxRequeue(apiURL string, id int64, out io.Writer) error {
	u := apiURL + "/api/admin/outbox/requeue?" + url.Values{
		"id": {fmt.Sprint(id)},
	}.Encode()

	resp, err := http.Post(u, "application/json", nil)
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

func runSkillsLS(apiURL string, out io.Writer) error {
	resp, err := http.Get(apiURL + "/api/admin/skills")
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
