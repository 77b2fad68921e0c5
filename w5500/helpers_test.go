package w5500

import (
	"context"
	"testing"

	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"github.com/viam-modules/w5500/w5500/fake"
)

func newTestDevice(t *testing.T, conf Config) (*Device, *fake.Chip) {
	t.Helper()
	chip := fake.NewChip()
	return newDeviceOnChip(t, chip, conf), chip
}

func newDeviceOnChip(t *testing.T, chip *fake.Chip, conf Config) *Device {
	t.Helper()
	if conf.Bus == nil {
		conf.Bus = chip
	}
	dev, err := New(conf, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, dev.Close(context.Background()), test.ShouldBeNil)
	})
	return dev
}

// countTxns counts logged transactions against a block, optionally only writes.
func countTxns(txns []fake.Transaction, block BlockSelect, writesOnly bool) int {
	var n int
	for _, txn := range txns {
		if txn.Block != uint8(block) {
			continue
		}
		if writesOnly && !txn.Write {
			continue
		}
		n++
	}
	return n
}

func countCommandPolls(txns []fake.Transaction, sn Socket) int {
	var n int
	for _, txn := range txns {
		if !txn.Write && txn.Block == uint8(sn.RegisterBlock()) && txn.Addr == SnCR {
			n++
		}
	}
	return n
}
