package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

func runQuery(apiURL, query, mode string, topK int, out io.Writer) error {
	u := apiURL + "/api/retrieval/query?" + url.Values{
		"q":     {query},
		"mode":  {mode},
		"top_k": {fmt.Sprint(topK)},
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
