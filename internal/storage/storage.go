package storage

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/saviobatista/ride-guardian/internal/types"
)

const dateLayout = "2006-01-02"

// Record is one line of a ride log
type Record struct {
	RiderID string `json:"rider_id"`
	types.RideData
}

// Storage writes ride data to daily JSON-lines files, compressing the
// previous day's file after rotation
type Storage struct {
	outputDir string
	file      *os.File
	fileDate  string
	now       func() time.Time
	mu        sync.Mutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New creates a new Storage instance
func New(outputDir string) *Storage {
	return &Storage{
		outputDir: outputDir,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// FileName returns the ride log file name for a day
func FileName(day time.Time) string {
	return fmt.Sprintf("ride_%s.jsonl", day.UTC().Format(dateLayout))
}

// Start opens today's file and starts the rotation timer
func (s *Storage) Start() error {
	s.mu.Lock()
	err := s.openFile()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go s.rotationTimer()

	return nil
}

// Stop closes the current file and stops the rotation timer
func (s *Storage) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// WriteRecord appends ride data of a rider to the current file
func (s *Storage) WriteRecord(riderID string, data *types.RideData) error {
	line, err := json.Marshal(Record{RiderID: riderID, RideData: *data})
	if err != nil {
		return fmt.Errorf("failed to marshal ride record: %w", err)
	}
	return s.WriteMessage(line)
}

// WriteMessage writes a line to the current log file
func (s *Storage) WriteMessage(message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		if err := s.openFile(); err != nil {
			return err
		}
	}

	if len(message) > 0 && message[len(message)-1] == '\n' {
		_, err := s.file.Write(message)
		return err
	}

	_, err := s.file.Write(append(message, '\n'))
	return err
}

// rotationTimer rotates at midnight UTC
func (s *Storage) rotationTimer() {
	defer s.wg.Done()

	for {
		now := s.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		timer := time.NewTimer(nextMidnight.Sub(now))

		select {
		case <-timer.C:
			if err := s.rotateAndCompress(); err != nil {
				fmt.Printf("Error during rotation: %v\n", err)
			}
		case <-s.stopChan:
			timer.Stop()
			return
		}
	}
}

// rotateAndCompress closes the current file, compresses it if its day is
// over and opens today's file
func (s *Storage) rotateAndCompress() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.fileDate
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			fmt.Printf("Warning: failed to close %s: %v\n", previous, err)
		}
		s.file = nil
	}

	today := s.now().UTC().Format(dateLayout)
	if previous != "" && previous != today {
		name := filepath.Join(s.outputDir, fmt.Sprintf("ride_%s.jsonl", previous))
		if _, err := os.Stat(name); err == nil {
			if err := compressFile(name); err != nil {
				return fmt.Errorf("failed to compress file: %w", err)
			}
		}
	}

	return s.openFile()
}

// compressFile gzips path into path.gz and removes the original
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// openFile opens today's log file for appending. Callers hold s.mu.
func (s *Storage) openFile() error {
	now := s.now()
	filename := filepath.Join(s.outputDir, FileName(now))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = file
	s.fileDate = now.UTC().Format(dateLayout)
	return nil
}

// ReadRecords calls fn for every record of a ride log. Files ending in .gz
// are decompressed. Blank lines are skipped; a malformed line is an error.
func ReadRecords(path string, fn func(Record) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
