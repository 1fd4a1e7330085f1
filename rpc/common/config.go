package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dVer/lib/versioning"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerStoreType string

const (
	StoreTypeMemory ServerStoreType = "memory"
	StoreTypeBolt   ServerStoreType = "bolt"
	StoreTypeSQLite ServerStoreType = "sqlite"
	StoreTypeRaft   ServerStoreType = "raft"
)

// ParseStoreType parses the TYPE part of a --stores entry
func ParseStoreType(s string) (ServerStoreType, error) {
	switch t := ServerStoreType(strings.ToLower(strings.TrimSpace(s))); t {
	case StoreTypeMemory, StoreTypeBolt, StoreTypeSQLite, StoreTypeRaft:
		return t, nil
	default:
		return "", fmt.Errorf("invalid store type: %s (expected one of: memory, bolt, sqlite, raft)", s)
	}
}

type ServerStore struct {
	// StoreID addresses the store in requests, for raft stores it is also the shard id
	StoreID uint64
	// Type is the backend of the store
	Type ServerStoreType
}

// VersioningConfig holds the settings of the guards created by the server
type VersioningConfig struct {
	// HistoryCollection is appended to the live collection name ("<collection>.<history>")
	HistoryCollection string
	LeaseCollection   string
	LeaseTTL          time.Duration
	TenantField       string
	LogErrors         bool
}

// ServerConfig holds all configuration parameters of a server.
type ServerConfig struct {
	// the stores served by this server
	Stores []ServerStore

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// DataDir holds the raft data and the files of the bolt and sqlite stores
	DataDir string

	// timeout of a single store operation
	TimeoutSecond int64

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string

	// Versioned collections
	Versioning VersioningConfig
}

// HasRaftStore checks if the configuration contains any raft replicated stores
func (c *ServerConfig) HasRaftStore() bool {
	for _, s := range c.Stores {
		if s.Type == StoreTypeRaft {
			return true
		}
	}
	return false
}

// GuardOptions returns the versioning options for a live collection
func (c *ServerConfig) GuardOptions(collection string) *versioning.Options {
	opts := versioning.DefaultOptions(collection)
	history := c.Versioning.HistoryCollection
	if history == "" {
		history = versioning.DefaultHistoryCollection
	}
	opts.HistoryCollection = collection + "." + history
	if c.Versioning.LeaseCollection != "" {
		opts.LeaseCollection = c.Versioning.LeaseCollection
	}
	if c.Versioning.LeaseTTL > 0 {
		opts.LeaseTTL = c.Versioning.LeaseTTL
	}
	if c.Versioning.TenantField != "" {
		opts.TenantField = c.Versioning.TenantField
	}
	opts.LogErrors = c.Versioning.LogErrors
	return opts
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Stores
	addSection("Stores")
	for _, s := range c.Stores {
		addField(strconv.FormatUint(s.StoreID, 10), string(s.Type))
	}
	addField("Data Directory", c.DataDir)

	// Versioning
	addSection("Versioning")
	addField("History Collection", "<collection>."+c.Versioning.HistoryCollection)
	addField("Lease Collection", c.Versioning.LeaseCollection)
	addField("Lease TTL", c.Versioning.LeaseTTL.String())
	addField("Tenant Field", c.Versioning.TenantField)
	addField("Log Errors", strconv.FormatBool(c.Versioning.LogErrors))

	if c.HasRaftStore() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
