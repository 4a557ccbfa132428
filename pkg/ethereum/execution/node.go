package execution

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/tracedbg/pkg/ethereum"
)

// headerTransport adds custom headers to requests and respects context cancellation.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// Node is a connection to one execution client, used to fetch the chain's
// deployment history and the raw instruction trace of a transaction.
type Node struct {
	config *Config
	log    logrus.FieldLogger
	rpc    *ethrpc.Provider
}

func NewNode(log logrus.FieldLogger, conf *Config) *Node {
	return &Node{
		config: conf,
		log:    log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
	}
}

// Start creates the RPC provider. It does not block on node availability;
// call WaitUntilReady before issuing requests.
func (n *Node) Start(_ context.Context) error {
	httpClient := http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	httpClient.Transport = &headerTransport{
		headers: n.config.NodeHeaders,
		base:    httpClient.Transport,
	}

	rpc, err := ethrpc.NewProvider(n.config.NodeAddress, ethrpc.WithHTTPClient(&httpClient))
	if err != nil {
		return fmt.Errorf("failed to create RPC provider for %s: %w", n.config.NodeAddress, err)
	}

	n.rpc = rpc

	n.log.WithField("address", n.config.NodeAddress).Info("Execution node client created")

	return nil
}

// Name returns the configured node name.
func (n *Node) Name() string {
	return n.config.Name
}

// WaitUntilReady polls eth_blockNumber with exponential backoff until the node
// answers or the allowed window elapses. This is the only internally retried
// call; everything after session start fails fast.
func (n *Node) WaitUntilReady(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxElapsed

	operation := func() error {
		if _, err := n.BlockNumber(ctx); err != nil {
			n.log.WithError(err).Warn("Execution node not ready yet, will retry")

			return err
		}

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("%w: %v", ethereum.ErrNodeNotReady, err)
	}

	n.log.Info("Execution node is ready")

	return nil
}
