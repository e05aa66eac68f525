package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/regression"

	"github.com/dgraph-io/dgo/v210"
	"github.com/dgraph-io/dgo/v210/protos/api"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Archive of captured baselines and regression reports in Dgraph.
//
// Schema used:
//
//	baseline_label: string @index(exact) .
//	captured_at: int @index(int) .
//	evaluated_at: int @index(int) .
//	tile_fetch_started: int .
//	switch_sample_count: int .
//	report_status: string @index(exact) .
//	diagnostics: string .
//	report: string .
const schema = `baseline_label: string @index(exact) .
captured_at: int @index(int) .
evaluated_at: int @index(int) .
tile_fetch_started: int .
switch_sample_count: int .
report_status: string @index(exact) .
diagnostics: string .
report: string .

type Baseline {
	baseline_label
	captured_at
	tile_fetch_started
	switch_sample_count
	diagnostics
}

type RegressionReport {
	baseline_label
	captured_at
	evaluated_at
	report_status
	report
}`

// Client wraps a dgo.Dgraph instance.
type Client struct {
	dg         *dgo.Dgraph
	conn       *grpc.ClientConn
	maxRetries int
	log        logrus.FieldLogger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for the given Dgraph gRPC address (eg "localhost:9080").
// The connection is established lazily on first use.
func NewClient(addr string, maxRetries int, log logrus.FieldLogger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create dgraph client for %s: %w", addr, err)
	}
	return &Client{
		dg:         dgo.NewDgraphClient(api.NewDgraphClient(conn)),
		conn:       conn,
		maxRetries: maxRetries,
		log:        logging.Component(log, "archive").WithField("addr", addr),
		sleep:      sleepCtx,
	}, nil
}

// Close closes the gRPC connection, call this with defer.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.withRetries(ctx, "alter schema", func(ctx context.Context) error {
		return c.dg.Alter(ctx, &api.Operation{Schema: schema})
	})
}

func (c *Client) SaveBaseline(ctx context.Context, entry baseline.Entry) error {
	node, err := newBaselineNode(entry)
	if err != nil {
		return err
	}
	return c.save(ctx, "save baseline", node)
}

func (c *Client) SaveReport(ctx context.Context, report regression.Report) error {
	node, err := newReportNode(report)
	if err != nil {
		return err
	}
	return c.save(ctx, "save report", node)
}

func (c *Client) save(ctx context.Context, name string, node any) error {
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("%s: marshal failed: %w", name, err)
	}

	// a fresh transaction per attempt; an aborted one cannot be reused
	return c.withRetries(ctx, name, func(ctx context.Context) error {
		txn := c.dg.NewTxn()
		defer txn.Discard(ctx)
		_, err := txn.Mutate(ctx, &api.Mutation{SetJson: payload, CommitNow: true})
		return err
	})
}

type baselineNode struct {
	UID               string   `json:"uid"`
	DType             []string `json:"dgraph.type"`
	Label             string   `json:"baseline_label"`
	CapturedAt        int64    `json:"captured_at"`
	TileFetchStarted  uint64   `json:"tile_fetch_started"`
	SwitchSampleCount int      `json:"switch_sample_count"`
	Diagnostics       string   `json:"diagnostics"`
}

func newBaselineNode(entry baseline.Entry) (baselineNode, error) {
	diag, err := json.Marshal(entry.Diagnostics)
	if err != nil {
		return baselineNode{}, fmt.Errorf("marshal diagnostics: %w", err)
	}
	return baselineNode{
		UID:               "_:baseline",
		DType:             []string{"Baseline"},
		Label:             entry.Label,
		CapturedAt:        entry.CapturedAtMs,
		TileFetchStarted:  entry.Diagnostics.TileFetchStarted,
		SwitchSampleCount: entry.Diagnostics.SwitchDurationMs.Samples.Len(),
		Diagnostics:       string(diag),
	}, nil
}

type reportNode struct {
	UID         string   `json:"uid"`
	DType       []string `json:"dgraph.type"`
	Label       string   `json:"baseline_label"`
	CapturedAt  int64    `json:"captured_at"`
	EvaluatedAt int64    `json:"evaluated_at"`
	Status      string   `json:"report_status"`
	Report      string   `json:"report"`
}

func newReportNode(r regression.Report) (reportNode, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return reportNode{}, fmt.Errorf("marshal report: %w", err)
	}
	return reportNode{
		UID:         "_:report",
		DType:       []string{"RegressionReport"},
		Label:       r.Label,
		CapturedAt:  r.CapturedAtMs,
		EvaluatedAt: r.EvaluatedAtMs,
		Status:      string(r.Status()),
		Report:      string(body),
	}, nil
}
