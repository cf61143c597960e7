package company

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLateWindowFallback(t *testing.T) {
	assert.Equal(t, 15*time.Minute, Settings{}.LateWindow())
	assert.Equal(t, 15*time.Minute, Settings{LateWindowMinutes: -3}.LateWindow())
	assert.Equal(t, 30*time.Minute, Settings{LateWindowMinutes: 30}.LateWindow())
}
