package sqlite_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/pkg/storage"
	"github.com/papercomputeco/streamline/pkg/storage/sqlite"
	"github.com/papercomputeco/streamline/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	Context("in memory", func() {
		storagetest.DriverBehaviors(func(ctx context.Context) storage.Driver {
			driver, err := sqlite.NewDriver(ctx, ":memory:")
			Expect(err).NotTo(HaveOccurred())
			return driver
		})
	})

	Context("on disk", func() {
		var dbPath string

		BeforeEach(func() {
			dbPath = filepath.Join(GinkgoT().TempDir(), "streamline.db")
		})

		It("persists turns across reopen", func() {
			ctx := context.Background()

			driver, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Insert(ctx, storagetest.AssistantTurn("conv-1", "gen-1", "kept"))
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Close()).To(Succeed())

			reopened, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer reopened.Close()

			got, err := reopened.GetByGenerationID(ctx, "gen-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("kept"))

			res, err := reopened.Insert(ctx, storagetest.AssistantTurn("conv-1", "gen-1", "again"))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(storage.StatusAlreadyExists))
		})

		It("fails for an unwritable path", func() {
			_, err := sqlite.NewDriver(context.Background(), filepath.Join(dbPath, "missing-dir", "x.db"))
			Expect(err).To(HaveOccurred())
		})
	})
})
