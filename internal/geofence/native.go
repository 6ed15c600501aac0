package geofence

import (
	"io"
	"os"
	"os/exec"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	"go.uber.org/zap"
)

const probeStartTimeout = 3 * time.Second

// Probe attempts to bind the native locator helper exactly once at startup.
// It launches the helper, dispenses the locator and verifies a known method
// is callable before trusting it. On any failure the fallback stub is
// returned, so every environment without the helper (dev sandboxes,
// unsupported platforms) degrades to inert no-ops instead of crashing.
func Probe(helperPath func() string, log Log) Locator {
	path := helperPath()
	if path == "" {
		log.Info("no locator helper configured, geofencing runs in fallback mode")
		return newFallbackLocator()
	}

	if _, err := os.Stat(path); err != nil {
		log.Info("locator helper binary not found: ", zap.String("path", path), zap.Error(err))
		return newFallbackLocator()
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Plugins: map[string]plugin.Plugin{
			PluginName: &LocatorPlugin{},
		},
		Cmd:          exec.Command(path),
		Managed:      true,
		StartTimeout: probeStartTimeout,
		Logger:       hclog.New(&hclog.LoggerOptions{Output: io.Discard, Level: hclog.NoLevel}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		log.Info("cannot start locator helper: ", zap.Error(err))
		client.Kill()
		return newFallbackLocator()
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		log.Info("cannot dispense locator plugin: ", zap.Error(err))
		client.Kill()
		return newFallbackLocator()
	}

	locator, ok := raw.(Locator)
	if !ok {
		log.Info("locator plugin has unexpected type")
		client.Kill()
		return newFallbackLocator()
	}

	// capability probe: a helper that cannot answer the permission query is
	// not usable as a locator
	if _, err := locator.HasAlwaysAuthorization(); err != nil {
		log.Info("locator helper failed capability probe: ", zap.Error(err))
		client.Kill()
		return newFallbackLocator()
	}

	log.Info("native locator helper attached", zap.String("path", path))

	return &nativeLocator{Locator: locator, client: client}
}

// nativeLocator owns the helper process lifetime on top of the RPC surface.
type nativeLocator struct {
	Locator
	client *plugin.Client
}

func (n *nativeLocator) Close() error {
	n.client.Kill()
	return nil
}
