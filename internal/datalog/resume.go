package datalog

import "github.com/lidar-tools/lidarchive/internal/models"

// PendingConversion lists tasks that were never converted.
func (d *Datalog) PendingConversion() []models.Task {
	return d.filter(func(t *models.Task) bool {
		return t.NeedsConversion()
	})
}

// PendingUpload lists converted tasks still waiting for an upload.
func (d *Datalog) PendingUpload() []models.Task {
	return d.filter(func(t *models.Task) bool {
		return t.Converted && t.NeedsUpload()
	})
}

// PendingDownload lists uploaded tasks whose products were not fetched.
// Tasks sharing a remote id are listed once.
func (d *Datalog) PendingDownload() []models.Task {
	seen := make(map[string]struct{})
	return d.filter(func(t *models.Task) bool {
		if !t.Uploaded || !t.NeedsDownload() {
			return false
		}
		if _, dup := seen[t.RemoteID]; dup {
			return false
		}
		seen[t.RemoteID] = struct{}{}
		return true
	})
}

func (d *Datalog) filter(keep func(*models.Task) bool) []models.Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.Task
	for _, t := range d.orderedLocked() {
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

// Summary counts tasks by progress.
type Summary struct {
	Total           int `json:"total"`
	Converted       int `json:"converted"`
	Uploaded        int `json:"uploaded"`
	Downloaded      int `json:"downloaded"`
	NotConverted    int `json:"notConverted"`
	NotUploaded     int `json:"notUploaded"`
	NotDownloaded   int `json:"notDownloaded"`
	AlreadyOnRemote int `json:"alreadyOnRemote"`
}

// Unfinished reports whether any task still has work left.
func (s Summary) Unfinished() bool {
	return s.NotConverted > 0 || s.NotUploaded > 0 || s.NotDownloaded > 0
}

// Summarize counts tasks by progress.
func Summarize(tasks []models.Task) Summary {
	s := Summary{Total: len(tasks)}
	for i := range tasks {
		t := &tasks[i]
		if t.Converted {
			s.Converted++
		}
		if t.Uploaded {
			s.Uploaded++
		}
		if t.Downloaded {
			s.Downloaded++
		}
		if t.AlreadyOnRemote {
			s.AlreadyOnRemote++
		}
		if t.NeedsConversion() {
			s.NotConverted++
		}
		if t.Converted && t.NeedsUpload() {
			s.NotUploaded++
		}
		if t.Uploaded && t.NeedsDownload() {
			s.NotDownloaded++
		}
	}
	return s
}

// Summary counts the ledger's tasks by progress.
func (d *Datalog) Summary() Summary {
	return Summarize(d.Tasks())
}
