package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func getCmd(name, path string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	do(http.MethodGet, *baseURL, path, nil, 5*time.Second)
}

func postCmd(name, path string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	do(http.MethodPost, *baseURL, path, nil, 10*time.Second)
}

func spawnCmd(args []string) {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	seed := fs.Int64("seed", time.Now().UnixNano(), "entity rng seed")
	_ = fs.Parse(args)

	body, _ := json.Marshal(map[string]int64{"seed": *seed})
	do(http.MethodPost, *baseURL, "/admin/v1/citizens", body, 5*time.Second)
}

func removeCmd(args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	id := fs.String("id", "", "citizen uuid")
	_ = fs.Parse(args)
	if strings.TrimSpace(*id) == "" {
		fmt.Fprintln(os.Stderr, "usage: admin remove -id UUID [-url URL]")
		os.Exit(2)
	}
	do(http.MethodDelete, *baseURL, "/admin/v1/citizens/"+strings.TrimSpace(*id), nil, 10*time.Second)
}

func do(method, baseURL, path string, body []byte, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, _ := http.NewRequest(method, u, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
