package processing

import (
	"context"

	"github.com/lidar-tools/lidarchive/internal/datalog"
)

// DownloadMeasurements fetches the products of every uploaded task that
// wants them. Tasks with wait enabled block until the remote finishes;
// the others only pick up measurements that are already processed.
func (p *Processor) DownloadMeasurements(ctx context.Context) error {
	for _, task := range p.ledger.PendingDownload() {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := p.log.WithField("task", task.ID).WithField("remote_id", task.RemoteID)

		var (
			status *RemoteStatus
			err    error
		)
		if task.WaitEnabled {
			log.Debug("Waiting for processing to finish and downloading files...")
			status, err = p.remote.MonitorProcessing(ctx, task.RemoteID, !task.WaitEnabled)
		} else {
			status, err = p.remote.GetMeasurement(ctx, task.RemoteID)
		}

		var changes []change
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.WithError(err).Error("Error downloading SCC products")
			changes = append(changes, change{datalog.FieldResult, ResultDownloadError})
		case status != nil && status.Version == "":
			result := ResultNoProducts
			if status.ELPPCode == elppUnknownError {
				result = ResultUnknownProducts
			}
			log.WithField("elpp", status.ELPPCode).Error(result)
			changes = append(changes, change{datalog.FieldResult, result})
		case status != nil:
			changes = append(changes,
				change{datalog.FieldDownloaded, true},
				change{datalog.FieldResult, p.remoteDir},
				change{datalog.FieldRemoteVersion, status.Version},
			)
		case task.WaitEnabled:
			log.Error("Download failed")
			changes = append(changes, change{datalog.FieldResult, ResultDownloadError})
		default:
			log.Info("Measurement was not yet processed, will not wait for it.")
			changes = append(changes, change{datalog.FieldResult, ResultNotProcessed})
		}

		if err := p.record(task.ID, changes...); err != nil {
			return err
		}
	}
	return nil
}

// LogInterruptedWork warns about tasks a previous run left unfinished.
func (p *Processor) LogInterruptedWork() datalog.Summary {
	s := p.ledger.Summary()
	if s.Unfinished() {
		p.log.WithField("tasks", s.Total).Warnf(
			"Not converted: %d, not uploaded: %d, not downloaded: %d",
			s.NotConverted, s.NotUploaded, s.NotDownloaded,
		)
	} else {
		p.log.Debug("No interrupted work found")
	}
	return s
}
