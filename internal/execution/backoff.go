package execution

import "time"

// BackoffPolicy returns how long to wait before retry attempt n.
// Attempts are numbered from 1.
type BackoffPolicy func(attempt int) time.Duration

// ExponentialBackoff doubles the base delay per attempt, capped at max
// ⭐ SSOT: 재시도 대기시간 계산은 여기서만
func ExponentialBackoff(base, max time.Duration) BackoffPolicy {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}

		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}

		if delay > max {
			return max
		}
		return delay
	}
}
