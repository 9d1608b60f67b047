package bluebird

import (
	"testing"
	"time"
)

type awaitResult struct {
	val Value
	err error
}

func awaitWithTimeout(t *testing.T, p *Promise, timeout time.Duration) (Value, error) {
	t.Helper()

	resChan := make(chan awaitResult, 1)

	go func() {
		val, err := p.Await()
		resChan <- awaitResult{val, err}
	}()

	select {
	case res := <-resChan:
		return res.val, res.err
	case <-time.After(timeout):
		t.Fatalf("promise was not settled after %s", timeout)
		return nil, nil
	}
}
