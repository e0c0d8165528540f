package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/roll-call/internal/database/mock"
)

func TestRecordFrame(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store)
	at := time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC)

	markings := []Marking{
		{StudentID: "ALICE", Confidence: 0.92},
		{StudentID: "BOB", Confidence: 0.78},
		{StudentID: "", Confidence: 0}, // unknown face
	}

	summary, err := recorder.RecordFrame(context.Background(), markings, at, "frame-1")
	if err != nil {
		t.Fatalf("RecordFrame() error: %v", err)
	}
	if len(summary.NewlyMarked) != 2 {
		t.Errorf("NewlyMarked = %v, want 2 students", summary.NewlyMarked)
	}
	if summary.UnknownCount != 1 {
		t.Errorf("UnknownCount = %d, want 1", summary.UnknownCount)
	}
	if summary.DuplicatesSkipped != 0 {
		t.Errorf("DuplicatesSkipped = %d, want 0", summary.DuplicatesSkipped)
	}

	records, err := recorder.Report(context.Background(), at)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].StudentID != "ALICE" || records[1].StudentID != "BOB" {
		t.Errorf("records = %+v", records)
	}
	if records[0].Confidence != 0.92 || records[0].SourceRef != "frame-1" {
		t.Errorf("record detail = %+v", records[0])
	}
}

func TestRecordFrameIdempotent(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store)
	at := time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC)

	markings := []Marking{{StudentID: "ALICE", Confidence: 0.92}}
	if _, err := recorder.RecordFrame(context.Background(), markings, at, "frame-1"); err != nil {
		t.Fatalf("first RecordFrame() error: %v", err)
	}

	// Same student later the same day: reported as duplicate, the first
	// record stays authoritative.
	later := at.Add(2 * time.Hour)
	summary, err := recorder.RecordFrame(context.Background(),
		[]Marking{{StudentID: "ALICE", Confidence: 0.65}}, later, "frame-2")
	if err != nil {
		t.Fatalf("second RecordFrame() error: %v", err)
	}
	if len(summary.NewlyMarked) != 0 || summary.DuplicatesSkipped != 1 {
		t.Errorf("summary = %+v, want duplicate skip", summary)
	}

	records, err := recorder.Report(context.Background(), at)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Confidence != 0.92 || records[0].SourceRef != "frame-1" {
		t.Errorf("first record was overwritten: %+v", records[0])
	}
}

func TestRecordFrameNextDayMarksAgain(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store)
	day1 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	markings := []Marking{{StudentID: "ALICE", Confidence: 0.9}}
	if _, err := recorder.RecordFrame(context.Background(), markings, day1, "a"); err != nil {
		t.Fatal(err)
	}
	summary, err := recorder.RecordFrame(context.Background(), markings, day2, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.NewlyMarked) != 1 {
		t.Errorf("summary = %+v, want new mark on the next day", summary)
	}

	records, err := recorder.ReportRange(context.Background(), day1, day2)
	if err != nil {
		t.Fatalf("ReportRange() error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestRecordFrameDuplicateMentionInFrame(t *testing.T) {
	store := mock.NewAttendanceStore()
	recorder := NewRecorder(store)
	at := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	markings := []Marking{
		{StudentID: "ALICE", Confidence: 0.9},
		{StudentID: "ALICE", Confidence: 0.8},
	}
	summary, err := recorder.RecordFrame(context.Background(), markings, at, "frame-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.NewlyMarked) != 1 || summary.DuplicatesSkipped != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRecordFrameStorageError(t *testing.T) {
	store := mock.NewAttendanceStore()
	store.MarkError = errors.New("connection refused")
	recorder := NewRecorder(store)

	_, err := recorder.RecordFrame(context.Background(),
		[]Marking{{StudentID: "ALICE", Confidence: 0.9}}, time.Now(), "frame-1")
	if err == nil {
		t.Fatal("expected error when storage fails")
	}
}
