package queue

import (
	"context"
	"errors"
)

// Message to zlecenie przetworzenia wgranego pliku przez zadanie process-import.
type Message struct {
	BatchID     string            `json:"batch_id"`
	DatasetType string            `json:"dataset_type"`
	FilePath    string            `json:"file_path"`
	Mapping     map[string]string `json:"mapping"`
}

func (m Message) Validate() error {
	switch {
	case m.BatchID == "":
		return errors.New("batch_id is required")
	case m.DatasetType == "":
		return errors.New("dataset_type is required")
	case m.FilePath == "":
		return errors.New("file_path is required")
	case len(m.Mapping) == 0:
		return errors.New("mapping is required")
	}
	return nil
}

// Dispatcher wysyła zlecenie i nie czeka na jego wykonanie.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) error
}

type Handler func(ctx context.Context, m Message) error

// Consumer odbiera zlecenia aż do anulowania kontekstu.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Drainer to kolejka, której zaległe zlecenia giną razem z procesem.
type Drainer interface {
	Drain() []Message
}
