package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

// Config captures the session details and the nodes read on each tick.
type Config struct {
	Endpoint        string       `yaml:"endpoint"`
	Username        string       `yaml:"username"`
	Password        string       `yaml:"password"`
	SecurityMode    string       `yaml:"security_mode"`
	SecurityPolicy  string       `yaml:"security_policy"`
	ApplicationName string       `yaml:"application_name"`
	Nodes           []NodeConfig `yaml:"nodes"`
}

// NodeConfig maps one OPC UA variable onto a hardware sensor record.
type NodeConfig struct {
	NodeID     string  `yaml:"node_id"`
	Parent     string  `yaml:"parent"`
	Name       string  `yaml:"name"`
	SensorType string  `yaml:"sensor_type"`
	Max        float64 `yaml:"max"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "HWPulse"
	}
	for i := range c.Nodes {
		if c.Nodes[i].Name == "" {
			c.Nodes[i].Name = c.Nodes[i].NodeID
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for _, n := range c.Nodes {
		if n.SensorType == "" {
			return fmt.Errorf("node %q: sensor_type is required", n.NodeID)
		}
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("node %q: %w", n.NodeID, err)
		}
	}
	return nil
}

type reader interface {
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
}

// Source reads the configured nodes once per tick over a lazily opened
// session.
type Source struct {
	cfg   Config
	ids   []*ua.NodeID
	dial  func(ctx context.Context) (reader, func(context.Context) error, error)
	mu    sync.Mutex
	conn  reader
	close func(context.Context) error
}

func New(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ids := make([]*ua.NodeID, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		ids[i] = ua.MustParseNodeID(n.NodeID)
	}
	s := &Source{cfg: cfg, ids: ids}
	s.dial = s.connect
	return s, nil
}

func (s *Source) Name() string { return "opcua" }

func (s *Source) ReadSensors(ctx context.Context) ([]domain.RawSensorRecord, error) {
	conn, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	req := &ua.ReadRequest{
		NodesToRead:        make([]*ua.ReadValueID, len(s.ids)),
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	}
	for i, id := range s.ids {
		req.NodesToRead[i] = &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue}
	}

	resp, err := conn.Read(ctx, req)
	if err != nil {
		s.reset(ctx)
		return nil, fmt.Errorf("opcua read: %w", err)
	}

	recs := make([]domain.RawSensorRecord, 0, len(resp.Results))
	for i, dv := range resp.Results {
		if i >= len(s.cfg.Nodes) || dv == nil || dv.Status != ua.StatusOK {
			continue
		}
		v, ok := variantToFloat(dv.Value)
		if !ok {
			continue
		}
		n := s.cfg.Nodes[i]
		recs = append(recs, domain.RawSensorRecord{
			Parent: n.Parent, Name: n.Name, SensorType: n.SensorType, Value: v, Max: n.Max,
		})
	}
	if len(recs) == 0 {
		return nil, ports.ErrEmptyResponse
	}
	return recs, nil
}

// Close ends the session if one is open.
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	closeFn := s.close
	s.conn, s.close = nil, nil
	s.mu.Unlock()
	if closeFn == nil {
		return nil
	}
	if err := closeFn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Source) session(ctx context.Context) (reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn, nil
	}
	conn, closeFn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.conn, s.close = conn, closeFn
	return conn, nil
}

// reset drops a session whose read failed so the next tick reconnects.
func (s *Source) reset(ctx context.Context) {
	_ = s.Close(ctx)
}

func (s *Source) connect(ctx context.Context) (reader, func(context.Context) error, error) {
	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("opcua connect: %w", err)
	}
	return client, client.Close, nil
}

func (s *Source) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(s.cfg.SecurityPolicy),
		opcua.ApplicationName(s.cfg.ApplicationName),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

var _ ports.SensorSource = (*Source)(nil)
