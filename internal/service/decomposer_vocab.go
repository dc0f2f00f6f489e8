package service

import "github.com/voidukas/conductor/internal/domain/decomp"

// Keyword vocabularies driving the four decompositions. Matching is
// case-insensitive whole-text containment; match density feeds effort and
// volume estimates.

// functionalLayer describes one functional layer's vocabulary and its
// static position in the layer dependency graph.
type functionalLayer struct {
	name      string
	keywords  []string
	priority  int
	dependsOn []string
}

var functionalLayers = []functionalLayer{
	{
		name:     "ui",
		keywords: []string{"ui", "interface", "frontend", "page", "view", "component", "design", "render", "display"},
		priority: 3,
		dependsOn: []string{
			"backend", "api",
		},
	},
	{
		name:      "backend",
		keywords:  []string{"backend", "server", "service", "logic", "business", "process", "handler"},
		priority:  1,
		dependsOn: []string{"database"},
	},
	{
		name:     "database",
		keywords: []string{"database", "db", "schema", "table", "query", "migration", "sql", "storage"},
		priority: 1,
	},
	{
		name:      "api",
		keywords:  []string{"api", "endpoint", "rest", "graphql", "route", "request", "response"},
		priority:  2,
		dependsOn: []string{"backend"},
	},
	{
		name:     "infrastructure",
		keywords: []string{"deploy", "infrastructure", "docker", "kubernetes", "ci", "pipeline", "terraform", "provision"},
		priority: 2,
	},
	{
		name:      "testing",
		keywords:  []string{"test", "spec", "coverage", "assert", "verify", "validate", "qa"},
		priority:  4,
		dependsOn: []string{"backend", "ui"},
	},
	{
		name:      "documentation",
		keywords:  []string{"document", "docs", "readme", "guide", "comment", "explain"},
		priority:  5,
		dependsOn: []string{"backend", "ui", "api"},
	},
}

// spatialZone maps a service zone's vocabulary to its service name,
// location class, and latency class.
type spatialZone struct {
	name     string
	keywords []string
	service  string
	location string
	latency  string
}

var spatialZones = []spatialZone{
	{
		name:     "frontend",
		keywords: []string{"frontend", "ui", "browser", "client", "react", "page"},
		service:  "web-client",
		location: decomp.LocationLocal,
		latency:  decomp.LatencyLow,
	},
	{
		name:     "backend-api",
		keywords: []string{"api", "endpoint", "rest", "gateway", "route"},
		service:  "api-gateway",
		location: decomp.LocationLocal,
		latency:  decomp.LatencyLow,
	},
	{
		name:     "backend-services",
		keywords: []string{"service", "worker", "job", "processor", "business"},
		service:  "core-services",
		location: decomp.LocationAdjacent,
		latency:  decomp.LatencyMedium,
	},
	{
		name:     "database-layer",
		keywords: []string{"database", "db", "query", "table", "sql", "storage"},
		service:  "datastore",
		location: decomp.LocationAdjacent,
		latency:  decomp.LatencyMedium,
	},
	{
		name:     "external-apis",
		keywords: []string{"external", "third-party", "webhook", "integration", "provider"},
		service:  "external-gateway",
		location: decomp.LocationRemote,
		latency:  decomp.LatencyHigh,
	},
	{
		name:     "file-system",
		keywords: []string{"file", "directory", "upload", "download", "disk", "path"},
		service:  "file-service",
		location: decomp.LocationLocal,
		latency:  decomp.LatencyLow,
	},
	{
		name:     "cache-layer",
		keywords: []string{"cache", "redis", "memoize", "ttl", "invalidate"},
		service:  "cache",
		location: decomp.LocationAdjacent,
		latency:  decomp.LatencyLow,
	},
}

// temporalPhase maps a phase vocabulary to a fixed execution order. Deferred
// and scheduled phases can run in the background.
type temporalPhase struct {
	name     string
	keywords []string
	order    int
	canDefer bool
}

var temporalPhases = []temporalPhase{
	{name: "immediate", keywords: []string{"now", "urgent", "immediately", "critical", "hotfix"}, order: 0},
	{name: "setup", keywords: []string{"setup", "install", "configure", "initialize", "prepare", "scaffold"}, order: 1},
	{name: "execution", keywords: []string{"implement", "build", "create", "write", "develop", "execute", "run"}, order: 2},
	{name: "validation", keywords: []string{"test", "verify", "validate", "check", "review"}, order: 3},
	{name: "cleanup", keywords: []string{"cleanup", "remove", "delete", "refactor", "tidy"}, order: 4},
	{name: "deferred", keywords: []string{"later", "eventually", "backlog", "someday", "background"}, order: 5, canDefer: true},
	{name: "scheduled", keywords: []string{"schedule", "cron", "daily", "weekly", "periodic", "recurring"}, order: 5, canDefer: true},
}

// dataPattern maps a data-domain vocabulary to an estimated shape and a
// recommended processing strategy.
type dataPattern struct {
	name       string
	keywords   []string
	volume     string
	velocity   string
	processing string
}

var dataPatterns = []dataPattern{
	{name: "logs", keywords: []string{"log", "logs", "logging", "trace", "audit"}, volume: "high", velocity: "high", processing: decomp.ProcessingStreaming},
	{name: "database", keywords: []string{"database", "record", "row", "table", "query"}, volume: "high", velocity: "medium", processing: decomp.ProcessingBatch},
	{name: "files", keywords: []string{"file", "document", "csv", "json", "upload"}, volume: "medium", velocity: "low", processing: decomp.ProcessingBatch},
	{name: "api", keywords: []string{"api", "request", "response", "payload", "endpoint"}, volume: "medium", velocity: "high", processing: decomp.ProcessingSync},
	{name: "memory", keywords: []string{"memory", "cache", "session", "state"}, volume: "low", velocity: "high", processing: decomp.ProcessingSync},
	{name: "events", keywords: []string{"event", "stream", "message", "queue", "publish", "subscribe"}, volume: "high", velocity: "high", processing: decomp.ProcessingStreaming},
	{name: "metrics", keywords: []string{"metric", "measure", "gauge", "counter", "statistic"}, volume: "medium", velocity: "medium", processing: decomp.ProcessingStreaming},
}
