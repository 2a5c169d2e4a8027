package mem

import (
	"context"
	"testing"

	"github.com/bobg/pullsync/testutil"
)

func TestCache(t *testing.T) {
	testutil.CacheReadWrite(context.Background(), t, New())
}
