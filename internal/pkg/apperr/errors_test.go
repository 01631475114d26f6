package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorClassification(t *testing.T) {
	base := errors.New("disk I/O error")
	err := fmt.Errorf("add experience: %w", Storage("写入经验失败", base))

	if !IsRetryable(err) {
		t.Fatalf("storage error should be retryable")
	}
	if !errors.Is(err, base) {
		t.Fatalf("wrapped cause lost")
	}
	if IsValidation(err) || IsNotFound(err) {
		t.Fatalf("misclassified: %v", err)
	}

	v := Validation("经验值必须为正数: %d", -1)
	if !IsValidation(v) || IsRetryable(v) {
		t.Fatalf("validation classification wrong: %v", v)
	}
	if v.Error() != "[VALIDATION_ERROR] 经验值必须为正数: -1" {
		t.Fatalf("Error() = %q", v.Error())
	}
}

func TestSyncInFlightSentinel(t *testing.T) {
	err := fmt.Errorf("sync: %w", New(CodeSyncInFlight, "entity e1", nil))
	if !errors.Is(err, ErrSyncInFlight) {
		t.Fatalf("errors.Is should match by code")
	}
	if errors.Is(ExternalSync("upload", nil), ErrSyncInFlight) {
		t.Fatalf("different code must not match")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Fatalf("plain error has no code")
	}
}
