// Package model defines core data structures for portage.
package model

import (
	"fmt"
	"time"
)

// Protocol identifies a file-transfer protocol.
type Protocol string

const (
	ProtocolSFTP Protocol = "sftp"
	ProtocolFTP  Protocol = "ftp"
	ProtocolFTPS Protocol = "ftps"
	ProtocolSCP  Protocol = "scp"
)

// ConnectionConfig describes one remote endpoint. It is immutable once
// handed to a probe or scan; workers receive copies, never pointers into
// shared state.
type ConnectionConfig struct {
	Protocol Protocol `json:"protocol"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password,omitempty"`
	KeyPath  string   `json:"key_path,omitempty"`
	RootPath string   `json:"root_path"`
}

// Addr returns the host:port dial address.
func (c ConnectionConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Capabilities records what an endpoint was observed to support.
type Capabilities struct {
	CanRead        bool     `json:"can_read"`
	CanWrite       bool     `json:"can_write"`
	CanList        bool     `json:"can_list"`
	ShellAvailable bool     `json:"shell_available"`
	PassiveListing bool     `json:"passive_listing"`
	MultiSession   bool     `json:"multi_session"`
	Compression    []string `json:"compression,omitempty"`
	ServerVersion  string   `json:"server_version,omitempty"`
}

// Performance holds single-sample timing measurements from a probe.
// Throughput numbers are noisy point estimates, not benchmarks.
type Performance struct {
	Latency             time.Duration `json:"latency_ns"`
	ConnectionSetupTime time.Duration `json:"connection_setup_ns"`
	UploadBytesPerSec   float64       `json:"upload_bytes_per_sec"`
	DownloadBytesPerSec float64       `json:"download_bytes_per_sec"`
}

// ProbeResult is the outcome of probing one endpoint. Created once per
// probe invocation and never mutated afterwards.
type ProbeResult struct {
	Success      bool         `json:"success"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	Error        string       `json:"error,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Performance  Performance  `json:"performance"`
	Badges       []string     `json:"badges,omitempty"`
	ProbedAt     time.Time    `json:"probed_at"`
}

// ScanLimits bounds a tree scan.
type ScanLimits struct {
	MaxDepth int `json:"max_depth"`
	MaxFiles int `json:"max_files"`
}

// ScanOptions toggles optional scan behavior.
type ScanOptions struct {
	DetectCMS      bool `json:"detect_cms"`
	IncludeHidden  bool `json:"include_hidden"`
	FollowSymlinks bool `json:"follow_symlinks"`
}

// FileEntry is a path/size pair used for the largest-files list.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Statistics aggregates what a scan visited.
type Statistics struct {
	TotalFiles      int64            `json:"total_files"`
	TotalDirs       int64            `json:"total_dirs"`
	TotalSize       int64            `json:"total_size"`
	MaxDepth        int              `json:"max_depth"`
	ExtensionCounts map[string]int64 `json:"extension_counts,omitempty"`
	LargestFiles    []FileEntry      `json:"largest_files,omitempty"`
	ExcludedCount   int64            `json:"excluded_count"`
	ExcludedSize    int64            `json:"excluded_size"`
	SkippedPaths    []string         `json:"skipped_paths,omitempty"`
}

// TransferableSize is the byte count remaining after exclusions.
func (s Statistics) TransferableSize() int64 {
	return s.TotalSize - s.ExcludedSize
}

// CMSType identifies a detected content-management system.
type CMSType string

const (
	CMSNone       CMSType = "none"
	CMSWordPress  CMSType = "wordpress"
	CMSJoomla     CMSType = "joomla"
	CMSDrupal     CMSType = "drupal"
	CMSMagento    CMSType = "magento"
	CMSPrestaShop CMSType = "prestashop"
)

// DatabaseConfig holds connection parameters discovered in a CMS config
// file. The password is intentionally not captured.
type DatabaseConfig struct {
	Host        string `json:"host,omitempty"`
	Name        string `json:"name,omitempty"`
	User        string `json:"user,omitempty"`
	TablePrefix string `json:"table_prefix,omitempty"`
}

// CMSDetection is the result of signature matching during a scan.
// Confidence is always in [0,1].
type CMSDetection struct {
	Detected          bool            `json:"detected"`
	Type              CMSType         `json:"type"`
	Confidence        float64         `json:"confidence"`
	MatchedIndicators []string        `json:"matched_indicators,omitempty"`
	Database          *DatabaseConfig `json:"database,omitempty"`
}

// ExclusionPattern is a glob rule that removes entries from the
// transferable total without removing them from the visited total.
type ExclusionPattern struct {
	Pattern   string `json:"pattern"`
	Reason    string `json:"reason"`
	Automatic bool   `json:"is_automatic"`
	Enabled   bool   `json:"enabled"`
}

// ScanResult is the outcome of a tree scan.
type ScanResult struct {
	Success    bool               `json:"success"`
	ErrorKind  ErrorKind          `json:"error_kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	Statistics Statistics         `json:"statistics"`
	CMS        CMSDetection       `json:"cms_detection"`
	Exclusions []ExclusionPattern `json:"exclusions,omitempty"`
	Truncated  bool               `json:"truncated"`
}

// TransferMethod identifies a candidate migration technique.
type TransferMethod string

const (
	MethodPeerCopy    TransferMethod = "peer_to_peer_copy"
	MethodRsyncSSH    TransferMethod = "rsync_over_ssh"
	MethodStreaming   TransferMethod = "streaming_copy"
	MethodMultiClient TransferMethod = "multi_connection_client"
	MethodArchive     TransferMethod = "archive_stream"
)

// TransferStrategy is one feasible method with its score and estimate.
type TransferStrategy struct {
	Method           TransferMethod `json:"method"`
	Score            float64        `json:"score"`
	EstimatedTime    time.Duration  `json:"estimated_time_ns"`
	Pros             []string       `json:"pros,omitempty"`
	Cons             []string       `json:"cons,omitempty"`
	Requirements     []string       `json:"requirements,omitempty"`
	Command          string         `json:"command"`
	CanResume        bool           `json:"can_resume"`
	SupportsProgress bool           `json:"supports_progress"`
}

// PlanResult ranks the feasible strategies for one endpoint pair.
type PlanResult struct {
	Strategies         []TransferStrategy `json:"strategies"`
	Recommended        *TransferStrategy  `json:"recommended_strategy,omitempty"`
	Warnings           []string           `json:"warnings,omitempty"`
	RequiresDatabase   bool               `json:"requires_database"`
	EstimatedTotalTime time.Duration      `json:"estimated_total_time_ns"`
}

// TransferOptions tunes a transfer job.
type TransferOptions struct {
	Exclusions  []ExclusionPattern `json:"exclusions,omitempty"`
	Concurrency int                `json:"concurrency,omitempty"`
	DryRun      bool               `json:"dry_run,omitempty"`
}

// TransferResult summarizes a finished transfer.
type TransferResult struct {
	FilesTransferred int64         `json:"files_transferred"`
	BytesTransferred int64         `json:"bytes_transferred"`
	Duration         time.Duration `json:"duration_ns"`
	FailedPaths      []string      `json:"failed_paths,omitempty"`
}

// JobType discriminates the progress and result payloads of a Job.
type JobType string

const (
	JobScan     JobType = "scan"
	JobPlan     JobType = "plan"
	JobTransfer JobType = "transfer"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusPaused    JobStatus = "paused"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ScanProgress is the progress payload for scan jobs. PercentComplete
// is an estimate and may move backwards as the estimate is revised.
type ScanProgress struct {
	Status          string  `json:"status"`
	CurrentPath     string  `json:"current_path"`
	FilesScanned    int64   `json:"files_scanned"`
	DirsScanned     int64   `json:"dirs_scanned"`
	TotalSize       int64   `json:"total_size"`
	PercentComplete float64 `json:"percent_complete"`
}

// TransferProgress is the progress payload for transfer jobs.
type TransferProgress struct {
	Status         string  `json:"status"`
	CurrentFile    string  `json:"current_file"`
	FilesDone      int64   `json:"files_done"`
	FilesTotal     int64   `json:"files_total"`
	BytesDone      int64   `json:"bytes_done"`
	BytesTotal     int64   `json:"bytes_total"`
	BytesPerSecond float64 `json:"bytes_per_second"`
}

// Job is a tracked asynchronous unit of work. The progress and result
// fields form a tagged union discriminated by Type; exactly one result
// field (or ErrorMessage) is set once the job is terminal. Jobs are
// owned by the orchestrator; everything else reads copies.
type Job struct {
	ID          string            `json:"id"`
	Type        JobType           `json:"type"`
	Status      JobStatus         `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Source      *ConnectionConfig `json:"source,omitempty"`
	Dest        *ConnectionConfig `json:"dest,omitempty"`

	ScanProgress     *ScanProgress     `json:"scan_progress,omitempty"`
	TransferProgress *TransferProgress `json:"transfer_progress,omitempty"`

	ScanResult     *ScanResult     `json:"scan_result,omitempty"`
	TransferResult *TransferResult `json:"transfer_result,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// JobSummary is the flattened record appended to the history store when
// a job reaches a terminal state.
type JobSummary struct {
	JobID        string        `json:"job_id"`
	Type         JobType       `json:"type"`
	Status       JobStatus     `json:"status"`
	SourceHost   string        `json:"source_host,omitempty"`
	DestHost     string        `json:"dest_host,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// EventKind tags a job event so one stream can carry heterogeneous
// payloads without ambiguity.
type EventKind string

const (
	EventOutput   EventKind = "output"
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
)

// Event is a single entry on a job's progress stream.
type Event struct {
	Kind     EventKind         `json:"kind"`
	JobID    string            `json:"job_id"`
	Line     string            `json:"line,omitempty"`
	Scan     *ScanProgress     `json:"scan,omitempty"`
	Transfer *TransferProgress `json:"transfer,omitempty"`
	Status   JobStatus         `json:"status,omitempty"`
}
