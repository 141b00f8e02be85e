package config_test

import (
	"os"
	"runtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/conform/config"
)

var _ = Describe("Options", func() {
	known := []string{"layout", "conform", "send"}

	setenv := func(name, value string) {
		Expect(os.Setenv(name, value)).To(Succeed())
		DeferCleanup(os.Unsetenv, name)
	}

	It("should start with nothing enabled", func() {
		o := config.MakeOptions()

		Expect(o.Skips("conform")).To(BeFalse())
		Expect(o.Prints("conform")).To(BeFalse())
		Expect(o.Verify()).To(BeFalse())
		Expect(o.Workers()).To(Equal(1))
	})

	It("should not share sets between copies", func() {
		base := config.MakeOptions().WithSkip("layout")
		more := base.WithSkip("send")

		Expect(base.Skips("send")).To(BeFalse())
		Expect(more.Skips("layout")).To(BeTrue())
		Expect(more.Skips("send")).To(BeTrue())
	})

	It("should keep at least one worker", func() {
		Expect(config.MakeOptions().WithWorkers(-3).Workers()).To(Equal(1))
	})

	It("should read the environment", func() {
		setenv(config.EnvSkip, "conform, send")
		setenv(config.EnvPrint, "layout")
		setenv(config.EnvVerify, "1")
		setenv(config.EnvWorkers, "4")

		o := config.OptionsFromEnv(known)

		Expect(o.Skips("conform")).To(BeTrue())
		Expect(o.Skips("send")).To(BeTrue())
		Expect(o.Skips("layout")).To(BeFalse())
		Expect(o.Prints("layout")).To(BeTrue())
		Expect(o.Verify()).To(BeTrue())
		Expect(o.Workers()).To(Equal(4))
	})

	It("should ignore unknown steps", func() {
		setenv(config.EnvSkip, "conform,bogus,")

		o := config.OptionsFromEnv(known)

		Expect(o.Skips("conform")).To(BeTrue())
		Expect(o.Skips("bogus")).To(BeFalse())
	})

	It("should use every CPU for zero workers", func() {
		setenv(config.EnvWorkers, "0")

		Expect(config.OptionsFromEnv(known).Workers()).To(Equal(runtime.NumCPU()))
	})

	It("should ignore a malformed worker count", func() {
		setenv(config.EnvWorkers, "many")
		Expect(config.OptionsFromEnv(known).Workers()).To(Equal(1))

		setenv(config.EnvWorkers, "-2")
		Expect(config.OptionsFromEnv(known).Workers()).To(Equal(1))
	})
})
