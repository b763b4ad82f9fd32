package engine

import (
	"os"
	"testing"

	"github.com/kopertop/ai-dnd-expo-sub002/pkg/logger"
)

func TestMain(m *testing.M) {
	// Initialize the global logger before running any tests
	logger.Init()

	// Exit with the result of the tests
	os.Exit(m.Run())
}
