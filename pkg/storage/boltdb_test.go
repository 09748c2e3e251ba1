package storage

import (
	"bytes"
	"testing"
)

func TestSaveAndGetCA(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	data := []byte("PEM-encoded CA cert and key")
	if err := s.SaveCA(data); err != nil {
		t.Fatalf("SaveCA: %v", err)
	}

	got, err := s.GetCA()
	if err != nil {
		t.Fatalf("GetCA: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("GetCA() = %q, want %q", got, data)
	}
}

func TestGetCAMissing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	if _, err := s.GetCA(); err == nil {
		t.Fatal("expected error reading CA before it is saved")
	}
}

func TestSaveCAOverwrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()

	if err := s.SaveCA([]byte("v1")); err != nil {
		t.Fatalf("SaveCA v1: %v", err)
	}
	if err := s.SaveCA([]byte("v2")); err != nil {
		t.Fatalf("SaveCA v2: %v", err)
	}

	got, err := s.GetCA()
	if err != nil {
		t.Fatalf("GetCA: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("GetCA() = %q, want v2", got)
	}
}
