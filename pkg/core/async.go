package core

import (
	"context"
	"sync"
)

// IngestResult is the result of an asynchronous ingest operation.
type IngestResult struct {
	// PointID is the stored record's point ID.
	PointID int64

	// Error is the operation error, nil on success.
	Error error
}

// AsyncSearchResult is the result of an asynchronous similarity query.
type AsyncSearchResult struct {
	// Result is the full query answer.
	Result *SimilarCasesResult

	// Error is the operation error, nil on success.
	Error error
}

// AsyncDecayResult is the result of an asynchronous decay sweep.
type AsyncDecayResult struct {
	// Report summarizes the sweep.
	Report *DecayReport

	// Error is the operation error, nil on success.
	Error error
}

// AsyncClient provides asynchronous CareLedger operations.
//
// It wraps the synchronous Client and executes all operations in separate goroutines,
// making it suitable for scenarios requiring concurrent processing of multiple operations.
//
// All async methods return channels that will receive the results when operations complete.
// The client tracks all goroutines and provides Wait() to ensure all operations finish.
//
// Example:
//
//	asyncClient, _ := core.NewAsyncClient(config)
//	defer asyncClient.Close()
//
//	resultChan := asyncClient.FindSimilarCasesAsync(ctx, "patient_001", "chest pain")
//	result := <-resultChan
//	if result.Error != nil {
//	    log.Fatal(result.Error)
//	}
type AsyncClient struct {
	*Client
	wg sync.WaitGroup
}

// NewAsyncClient creates a new asynchronous CareLedger client.
//
// Parameters:
//   - cfg: CareLedger configuration
//
// Returns:
//   - *AsyncClient: The asynchronous client instance
//   - error: Error if configuration is invalid or initialization fails
func NewAsyncClient(cfg *Config) (*AsyncClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &AsyncClient{
		Client: client,
	}, nil
}

// IngestAsync stores a record asynchronously.
//
// The operation executes in a separate goroutine and returns its result via
// a channel.
func (ac *AsyncClient) IngestAsync(ctx context.Context, record *MedicalRecord) <-chan *IngestResult {
	resultChan := make(chan *IngestResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		pointID, err := ac.Ingest(ctx, record)
		resultChan <- &IngestResult{
			PointID: pointID,
			Error:   err,
		}
		close(resultChan)
	}()

	return resultChan
}

// FindSimilarCasesAsync runs a similarity query asynchronously.
//
// The operation executes in a separate goroutine and returns its result via
// a channel.
func (ac *AsyncClient) FindSimilarCasesAsync(ctx context.Context, patientID, query string, opts ...SearchOption) <-chan *AsyncSearchResult {
	resultChan := make(chan *AsyncSearchResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		result, err := ac.FindSimilarCases(ctx, patientID, query, opts...)
		resultChan <- &AsyncSearchResult{
			Result: result,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// ApplyTemporalDecayAsync runs a decay sweep asynchronously.
//
// The operation executes in a separate goroutine and returns its report via
// a channel.
func (ac *AsyncClient) ApplyTemporalDecayAsync(ctx context.Context, patientID string) <-chan *AsyncDecayResult {
	resultChan := make(chan *AsyncDecayResult, 1)
	ac.wg.Add(1)

	go func() {
		defer ac.wg.Done()
		report, err := ac.ApplyTemporalDecay(ctx, patientID)
		resultChan <- &AsyncDecayResult{
			Report: report,
			Error:  err,
		}
		close(resultChan)
	}()

	return resultChan
}

// Wait blocks until all in-flight asynchronous operations complete.
func (ac *AsyncClient) Wait() {
	ac.wg.Wait()
}

// Close waits for in-flight operations and closes the underlying client.
func (ac *AsyncClient) Close() error {
	ac.wg.Wait()
	return ac.Client.Close()
}
