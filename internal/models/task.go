package models

import "time"

// FileRecord is the persisted form of a measurement file.
type FileRecord struct {
	Path string   `json:"path" msgpack:"path"`
	Type FileType `json:"type" msgpack:"type"`
	Info FileInfo `json:"info" msgpack:"info"`
}

// MeasurementRecord is the persisted form of a measurement set.
type MeasurementRecord struct {
	ID     string       `json:"id" msgpack:"id"`
	Number int          `json:"number" msgpack:"number"`
	Data   []FileRecord `json:"data" msgpack:"data"`
	Dark   []FileRecord `json:"dark" msgpack:"dark"`
}

// Task tracks the processing state of one measurement set.
type Task struct {
	ID          string            `json:"id" msgpack:"id"`
	Measurement MeasurementRecord `json:"measurement" msgpack:"measurement"`

	// Desired actions, fixed when the task is initialised.
	WantConvert      bool `json:"wantConvert" msgpack:"want_convert"`
	WantUpload       bool `json:"wantUpload" msgpack:"want_upload"`
	WantDownload     bool `json:"wantDownload" msgpack:"want_download"`
	WantDebug        bool `json:"wantDebug" msgpack:"want_debug"`
	WaitEnabled      bool `json:"waitEnabled" msgpack:"wait_enabled"`
	ReprocessEnabled bool `json:"reprocessEnabled" msgpack:"reprocess_enabled"`
	ReplaceEnabled   bool `json:"replaceEnabled" msgpack:"replace_enabled"`

	Converted       bool `json:"converted" msgpack:"converted"`
	Uploaded        bool `json:"uploaded" msgpack:"uploaded"`
	Downloaded      bool `json:"downloaded" msgpack:"downloaded"`
	AlreadyOnRemote bool `json:"alreadyOnRemote" msgpack:"already_on_remote"`

	SystemID      int    `json:"systemId,omitempty" msgpack:"system_id"` // 0 until resolved
	RemoteID      string `json:"remoteId,omitempty" msgpack:"remote_id"`
	OutputPath    string `json:"outputPath,omitempty" msgpack:"output_path"`
	RemoteVersion string `json:"remoteVersion,omitempty" msgpack:"remote_version"`
	Result        string `json:"result" msgpack:"result"`

	ProcessStart time.Time `json:"processStart" msgpack:"process_start"`
	UpdatedAt    time.Time `json:"updatedAt" msgpack:"updated_at"`
}

// NeedsConversion reports whether the task still has to be converted.
func (t *Task) NeedsConversion() bool {
	return t.WantConvert && !t.Converted
}

// NeedsUpload reports whether the task still has to be uploaded.
func (t *Task) NeedsUpload() bool {
	return t.WantUpload && !t.Uploaded
}

// NeedsDownload reports whether remote products still have to be fetched.
func (t *Task) NeedsDownload() bool {
	return t.WantDownload && !t.Downloaded
}

// RunConfig is the run-level state stored next to the tasks.
type RunConfig struct {
	RunID             string     `json:"runId" msgpack:"run_id"`
	ConfigFile        string     `json:"configFile" msgpack:"config_file"`
	Folder            string     `json:"folder" msgpack:"folder"`
	ConvertOnly       bool       `json:"convertOnly" msgpack:"convert_only"`
	Reprocess         bool       `json:"reprocess" msgpack:"reprocess"`
	Replace           bool       `json:"replace" msgpack:"replace"`
	Download          bool       `json:"download" msgpack:"download"`
	Wait              bool       `json:"wait" msgpack:"wait"`
	Debug             bool       `json:"debug" msgpack:"debug"`
	LastProcessedDate *time.Time `json:"lastProcessedDate,omitempty" msgpack:"last_processed_date"`
	StartedAt         time.Time  `json:"startedAt" msgpack:"started_at"`
}

// IsZero reports whether nothing has been recorded in the config.
func (c RunConfig) IsZero() bool {
	return c.RunID == "" && c.ConfigFile == "" && c.Folder == "" && c.LastProcessedDate == nil && c.StartedAt.IsZero()
}

// TaskRow is one exported line of the processing history.
type TaskRow struct {
	RunID         string    `json:"runId"`
	ProcessStart  time.Time `json:"processStart"`
	TaskID        string    `json:"taskId"`
	DataFolder    string    `json:"dataFolder"`
	OutputFolder  string    `json:"outputFolder"`
	OutputFile    string    `json:"outputFile"`
	SystemID      int       `json:"systemId"`
	RemoteID      string    `json:"remoteId"`
	Uploaded      bool      `json:"uploaded"`
	Downloaded    bool      `json:"downloaded"`
	RemoteVersion string    `json:"remoteVersion"`
	Result        string    `json:"result"`
}
