package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/node"
)

var errNotReady = errors.New("cluster not available yet")

func main() {
	addr := flag.String("addr", "localhost:8080", "agent address")
	db := flag.String("db", "nb", "database: nb, sb or all")
	wait := flag.Duration("wait", 0, "keep polling until the cluster is available, up to this long")
	flag.Parse()

	ctx := context.Background()
	if *wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *wait)
		defer cancel()
	}

	url := "http://" + node.NormalizeHostPort(*addr, "8080") + "/endpoints"
	client := &http.Client{Timeout: 5 * time.Second}

	var (
		resp node.EndpointsResponse
		err  error
	)
	if *wait > 0 {
		resp, err = waitEndpoints(ctx, client, url, time.Second)
	} else {
		resp, err = fetchEndpoints(ctx, client, url)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errNotReady) {
			os.Exit(3)
		}
		os.Exit(1)
	}

	switch strings.ToLower(*db) {
	case "nb":
		fmt.Println(resp.Northbound)
	case "sb":
		fmt.Println(resp.Southbound)
	case "all":
		fmt.Printf("nb=%s\nsb=%s\n", resp.Northbound, resp.Southbound)
	default:
		fmt.Fprintf(os.Stderr, "unknown -db %q\n", *db)
		os.Exit(2)
	}
}

// waitEndpoints polls url until the cluster is available or ctx is done. A
// deadline reached while the agent still answers 503 is reported as
// errNotReady.
func waitEndpoints(ctx context.Context, client *http.Client, url string, delay time.Duration) (node.EndpointsResponse, error) {
	var (
		resp     node.EndpointsResponse
		notReady error
	)
	err := retry.Do(
		func() error {
			var err error
			resp, err = fetchEndpoints(ctx, client, url)
			if errors.Is(err, errNotReady) {
				notReady = err
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(delay),
		retry.MaxDelay(10*delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.WrapContextErrorWithLastError(true),
	)
	if err != nil && notReady != nil && ctx.Err() != nil {
		return resp, fmt.Errorf("%w (%w)", notReady, ctx.Err())
	}
	return resp, err
}

func fetchEndpoints(ctx context.Context, client *http.Client, url string) (node.EndpointsResponse, error) {
	var out node.EndpointsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return out, fmt.Errorf("%w: %s", errNotReady, strings.TrimSpace(string(body)))
	default:
		return out, retry.Unrecoverable(fmt.Errorf("unexpected status %s", resp.Status))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, retry.Unrecoverable(fmt.Errorf("failed to decode response: %w", err))
	}
	return out, nil
}
