// Copyright (c) 2025 The FileZap developers

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/go-socks/socks"
	"github.com/jessevdk/go-flags"

	"github.com/VetheonGames/sharenode/pkg/chunkstore"
	"github.com/VetheonGames/sharenode/pkg/filemanager"
	"github.com/VetheonGames/sharenode/pkg/node"
	"github.com/VetheonGames/sharenode/pkg/types"
)

const (
	defaultConfigFilename = "sharenode.conf"
	defaultLogFilename    = "sharenoded.log"
	defaultLogLevel       = "info"
	defaultListen         = "127.0.0.1:8001"
	defaultChunkCacheDir  = "chunks"
)

var (
	defaultDataDir    = filepath.Join(os.Getenv("HOME"), ".sharenode")
	defaultConfigFile = filepath.Join(defaultDataDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultDataDir, "logs")
)

// config defines the configuration options for sharenoded.
type config struct {
	// General application behavior
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion   bool   `short:"V" long:"version" description:"Display version information and exit"`
	DataDir       string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// Network settings
	Listen         string        `long:"listen" description:"Address to accept peer connections on (ip:port or host:port)"`
	Neighbors      string        `long:"neighbors" description:"File listing bootstrap neighbors, one ip:port or multiaddr per line"`
	DialTimeout    time.Duration `long:"dialtimeout" description:"Timeout for connecting to a peer"`
	IOTimeout      time.Duration `long:"iotimeout" description:"Deadline for one request/reply exchange"`
	MaxLineBytes   int           `long:"maxlinebytes" description:"Longest protocol line accepted"`
	GossipInterval time.Duration `long:"gossipinterval" description:"Ask every neighbor for its peers at this interval (0 disables)"`
	Proxy          string        `long:"proxy" description:"Connect to peers via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`

	// File sharing settings
	Shared        string        `long:"shared" description:"Directory whose files are shared and which receives downloads"`
	ChunkSize     int           `long:"chunksize" description:"Default download chunk size in bytes"`
	Quota         int64         `long:"quota" description:"Most bytes the shared directory may hold after a download (0 keeps the default of 100GB)"`
	Parallel      bool          `long:"parallel" description:"Fetch chunks from all peers concurrently"`
	ChunkTimeout  time.Duration `long:"chunktimeout" description:"Timeout for fetching one chunk"`
	ChunkCache    string        `long:"chunkcache" description:"Where fetched chunks wait for reassembly" choice:"memory" choice:"leveldb"`
	CacheDir      string        `long:"cachedir" description:"Directory in which the leveldb chunk cache creates its private database (default: <datadir>/chunks)"`
	MaxChunkBytes int           `long:"maxchunkbytes" description:"Largest chunk the cache accepts"`

	// Control API
	RPCListen string `long:"rpclisten" description:"Address for the JSON control API (disabled when empty)"`

	listenAddr types.Addr
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile:    defaultConfigFile,
		DataDir:       defaultDataDir,
		LogDir:        defaultLogDir,
		DebugLevel:    defaultLogLevel,
		Listen:        defaultListen,
		Shared:        ".",
		DialTimeout:   node.DefaultDialTimeout,
		IOTimeout:     node.DefaultIOTimeout,
		MaxLineBytes:  node.DefaultMaxLineBytes,
		ChunkSize:     node.DefaultChunkSize,
		ChunkTimeout:  node.DefaultChunkTimeout,
		ChunkCache:    chunkstore.KindMemory,
		MaxChunkBytes: chunkstore.DefaultMaxChunkBytes,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	if _, err := preParser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Println("sharenoded version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, fmt.Errorf("error parsing config file %s: %w", preCfg.ConfigFile, err)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, defaultChunkCacheDir)
	}

	if !cfg.NoFileLogging {
		if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
			return nil, nil, err
		}
	}

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, err
	}

	if err := validateNetworkOptions(&cfg); err != nil {
		return nil, nil, err
	}

	if err := validateSharingOptions(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}

// validateNetworkOptions resolves the listen address and checks timeouts.
func validateNetworkOptions(cfg *config) error {
	host, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.Listen, err)
	}
	if len(host) == 0 {
		return fmt.Errorf("listen interface can't be empty")
	}

	port, err := types.ParsePort(portStr)
	if err != nil && portStr != "0" {
		return err
	}

	// Host names are resolved once; the node advertises the IP.
	if net.ParseIP(host) == nil {
		ip, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", host, err)
		}
		host = ip.String()
	}
	cfg.listenAddr = types.Addr{IP: host, Port: port}

	if cfg.DialTimeout <= 0 || cfg.IOTimeout <= 0 || cfg.ChunkTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if cfg.GossipInterval < 0 {
		return fmt.Errorf("gossip interval can't be negative")
	}

	if cfg.Proxy != "" {
		if _, _, err := net.SplitHostPort(cfg.Proxy); err != nil {
			return fmt.Errorf("invalid proxy address %q: %w", cfg.Proxy, err)
		}
	} else if cfg.ProxyUser != "" || cfg.ProxyPass != "" {
		return fmt.Errorf("--proxyuser and --proxypass require --proxy")
	}

	return nil
}

// validateSharingOptions checks the shared directory and chunk settings.
func validateSharingOptions(cfg *config) error {
	if err := filemanager.NewManager(cfg.Shared).VerifyAccess(false); err != nil {
		return fmt.Errorf("shared directory: %w", err)
	}

	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if max := node.MaxChunkSize(cfg.MaxLineBytes); cfg.ChunkSize > max {
		return fmt.Errorf("chunk size %d does not fit --maxlinebytes=%d (max %d)", cfg.ChunkSize, cfg.MaxLineBytes, max)
	}
	if cfg.Quota < 0 {
		return fmt.Errorf("quota can't be negative")
	}
	if cfg.MaxChunkBytes < cfg.ChunkSize {
		return fmt.Errorf("max chunk bytes must be at least the chunk size")
	}

	return nil
}

// nodeConfig builds the node settings from the daemon config.
func (cfg *config) nodeConfig(store chunkstore.Store) node.Config {
	return node.Config{
		Listen:            cfg.listenAddr,
		NeighborsFile:     cfg.Neighbors,
		SharedDir:         cfg.Shared,
		Quota:             cfg.Quota,
		ChunkSize:         cfg.ChunkSize,
		DialTimeout:       cfg.DialTimeout,
		IOTimeout:         cfg.IOTimeout,
		ChunkTimeout:      cfg.ChunkTimeout,
		MaxLineBytes:      cfg.MaxLineBytes,
		ParallelDownloads: cfg.Parallel,
		GossipInterval:    cfg.GossipInterval,
		ChunkStore:        store,
		Proxy:             cfg.proxy(),
	}
}

// proxy returns the SOCKS5 proxy for outbound peer connections, or nil
func (cfg *config) proxy() *socks.Proxy {
	if cfg.Proxy == "" {
		return nil
	}
	return &socks.Proxy{
		Addr:     cfg.Proxy,
		Username: cfg.ProxyUser,
		Password: cfg.ProxyPass,
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
