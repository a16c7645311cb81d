// File: internal/records/watch.go

package records

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// Watch follows the journal file and invokes fn for every record appended
// after the call. It blocks until ctx is done. The journal file does not
// have to exist yet; tailing starts at the current end of file so history
// is not replayed.
func (j *Journal) Watch(ctx context.Context, fn func(Record)) error {
	t, err := tail.TailFile(j.path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: 2},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tailing journal %s: %w", j.path, err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	j.log.Info("Watching journal.", zap.String("path", j.path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				j.log.Warn("Journal tail error.", zap.Error(line.Err))
				continue
			}
			text := strings.TrimSpace(line.Text)
			if text == "" || strings.HasPrefix(text, journalHeader[0]+",") {
				continue
			}
			row, err := csv.NewReader(strings.NewReader(text)).Read()
			if err != nil {
				j.log.Warn("Skipping unparsable journal line.", zap.Error(err))
				continue
			}
			rec, err := recordFromRow(row)
			if err != nil {
				j.log.Warn("Skipping unreadable journal line.", zap.Error(err))
				continue
			}
			fn(rec)
		}
	}
}
