package logging

import "testing"

func TestProgressSamplerEmitsOnBucketBoundaries(t *testing.T) {
	s := NewProgressSampler(5)

	if !s.ShouldEmit(0, "transcribing") {
		t.Fatal("first update should emit")
	}
	if s.ShouldEmit(1, "transcribing") {
		t.Fatal("within-bucket update should be suppressed")
	}
	if s.ShouldEmit(4.9, "transcribing") {
		t.Fatal("within-bucket update should be suppressed")
	}
	if !s.ShouldEmit(5, "transcribing") {
		t.Fatal("bucket boundary should emit")
	}
	if !s.ShouldEmit(100, "transcribing") {
		t.Fatal("completion should emit")
	}
	if s.ShouldEmit(100, "transcribing") {
		t.Fatal("repeated completion should be suppressed")
	}
}

func TestProgressSamplerEmitsOnStageChange(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldEmit(50, "transcribing") {
		t.Fatal("first update should emit")
	}
	if !s.ShouldEmit(1, "distilling") {
		t.Fatal("stage change should emit even at low percent")
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldEmit(-1, "transcribing") {
		t.Fatal("unknown percent with new stage should emit")
	}
	if s.ShouldEmit(-1, "transcribing") {
		t.Fatal("unknown percent with same stage should be suppressed")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	_ = s.ShouldEmit(50, "transcribing")
	s.Reset()
	if !s.ShouldEmit(50, "transcribing") {
		t.Fatal("reset sampler should emit again")
	}
}

func TestNilSamplerAlwaysEmits(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldEmit(1, "x") {
		t.Fatal("nil sampler should always emit")
	}
	s.Reset()
}
