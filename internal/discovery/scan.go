// Package discovery resolves the coordination server URL by probing
// common local-network addresses. Best effort only: it runs once at
// startup and its result is configuration, not a correctness input.
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config bounds the scan. The scan never retries forever: it ends at
// ScanTimeout and surfaces whatever it found.
type Config struct {
	Ports        []int         `yaml:"ports"`
	ExtraHosts   []string      `yaml:"extra_hosts"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	BatchSize    int           `yaml:"batch_size"`
}

func (c Config) withDefaults() Config {
	if len(c.Ports) == 0 {
		c.Ports = []int{8750}
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 500 * time.Millisecond
	}
	if c.ScanTimeout == 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	return c
}

// Result holds the first healthy server plus every address that
// answered, so a caller can offer alternatives.
type Result struct {
	URL        string
	Candidates []string
}

// Scanner probes candidate hosts for a coordination server health
// endpoint.
type Scanner struct {
	cfg    Config
	log    zerolog.Logger
	client *http.Client
}

func New(cfg Config, log zerolog.Logger) *Scanner {
	cfg = cfg.withDefaults()
	return &Scanner{
		cfg:    cfg,
		log:    log.With().Str("mod", "discovery").Logger(),
		client: &http.Client{Timeout: cfg.ProbeTimeout},
	}
}

// Scan probes local /24 neighborhoods and configured extra hosts in
// batches. Returns the websocket URL of the first healthy server; a
// scan that finds nothing returns an error with partial results still
// populated in Result.Candidates.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	hosts := append([]string(nil), s.cfg.ExtraHosts...)
	hosts = append(hosts, localSubnetHosts()...)
	s.log.Info().Int("hosts", len(hosts)).Ints("ports", s.cfg.Ports).Msg("scanning for coordination server")

	var (
		mu         sync.Mutex
		candidates []string
	)

	for i := 0; i < len(hosts); i += s.cfg.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := i + s.cfg.BatchSize
		if end > len(hosts) {
			end = len(hosts)
		}

		var wg sync.WaitGroup
		for _, host := range hosts[i:end] {
			for _, port := range s.cfg.Ports {
				wg.Add(1)
				go func(host string, port int) {
					defer wg.Done()
					if s.probe(ctx, host, port) {
						mu.Lock()
						candidates = append(candidates, fmt.Sprintf("%s:%d", host, port))
						mu.Unlock()
					}
				}(host, port)
			}
		}
		wg.Wait()

		mu.Lock()
		found := len(candidates) > 0
		mu.Unlock()
		if found {
			break
		}
	}

	res := Result{Candidates: candidates}
	if len(candidates) == 0 {
		return res, fmt.Errorf("no coordination server found")
	}
	res.URL = "ws://" + candidates[0] + "/ws"
	s.log.Info().Str("url", res.URL).Msg("coordination server found")
	return res, nil
}

func (s *Scanner) probe(ctx context.Context, host string, port int) bool {
	url := fmt.Sprintf("http://%s:%d/health", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// localSubnetHosts enumerates the /24 around every non-loopback IPv4
// interface address.
func localSubnetHosts() []string {
	var hosts []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return hosts
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil {
			continue
		}
		base := ip.Mask(net.CIDRMask(24, 32))
		for i := 1; i < 255; i++ {
			candidate := net.IPv4(base[0], base[1], base[2], byte(i))
			if candidate.Equal(ip) {
				continue
			}
			hosts = append(hosts, candidate.String())
		}
	}
	return hosts
}
