//go:build integration

package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/attnmon/internal/daemon"
	"github.com/eliteGoblin/focusd/attnmon/internal/domain"
	"github.com/eliteGoblin/focusd/attnmon/internal/eventbus"
	"github.com/eliteGoblin/focusd/attnmon/internal/infra"
	"github.com/eliteGoblin/focusd/attnmon/internal/usecase"
	"github.com/eliteGoblin/focusd/attnmon/test/fixtures"
)

type eyeLog struct {
	mu     sync.Mutex
	events []domain.EyeEvent
}

func (l *eyeLog) HandleEvent(e domain.EyeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eyeLog) Events() []domain.EyeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.EyeEvent(nil), l.events...)
}

var _ = Describe("Vision Supervisor", func() {
	var (
		tmpDir     string
		worker     *fixtures.FakeWorker
		registry   domain.WorkerRegistry
		pm         domain.ProcessManager
		log        *eyeLog
		debouncer  domain.EyeDebouncer
		supervisor *daemon.VisionSupervisor
	)

	newSupervisor := func(command string, stopTimeout time.Duration) *daemon.VisionSupervisor {
		return daemon.NewVisionSupervisor(
			daemon.VisionConfig{Command: []string{command}, StopTimeout: stopTimeout},
			debouncer,
			registry,
			pm,
			zap.NewNop(),
		)
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "attnmon-integration-*")
		Expect(err).NotTo(HaveOccurred())

		worker = fixtures.NewFakeWorker(tmpDir)
		registry = infra.NewFileRegistry(filepath.Join(tmpDir, "state"))
		pm = infra.NewProcessManager()

		log = &eyeLog{}
		bus := eventbus.New[domain.EyeEvent]("eye", zap.NewNop())
		bus.Subscribe(log)
		debouncer = usecase.NewUnanimityDebouncer(5, bus, zap.NewNop())
	})

	AfterEach(func() {
		if supervisor != nil {
			_ = supervisor.Stop()
			supervisor = nil
		}
		os.RemoveAll(tmpDir)
	})

	Describe("Streaming samples", func() {
		Context("when the worker reports five closed samples", func() {
			It("should publish exactly one closed event", func() {
				path, err := worker.Streaming("vision-closed", false, false, false, false, false)
				Expect(err).NotTo(HaveOccurred())

				supervisor = newSupervisor(path, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				Eventually(log.Events, 5*time.Second, 20*time.Millisecond).Should(HaveLen(1))
				Consistently(log.Events, 300*time.Millisecond, 50*time.Millisecond).Should(HaveLen(1))
				Expect(log.Events()[0].Closed).To(BeTrue())
			})
		})

		Context("when the worker reports noisy samples", func() {
			It("should publish nothing", func() {
				path, err := worker.Streaming("vision-noisy", false, false, true, false, false, false)
				Expect(err).NotTo(HaveOccurred())

				supervisor = newSupervisor(path, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				Consistently(log.Events, 500*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())
			})
		})

		Context("when the worker exits on its own", func() {
			It("should reset the debouncer and allow a new start", func() {
				path, err := worker.Finite("vision-finite", "false", "false", "hello", "false", "false", "false")
				Expect(err).NotTo(HaveOccurred())

				supervisor = newSupervisor(path, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				Eventually(supervisor.Running, 5*time.Second, 20*time.Millisecond).Should(BeFalse())
				Eventually(supervisor.Done(), 5*time.Second).Should(BeClosed())
				Expect(log.Events()).To(HaveLen(1))
				Expect(debouncer.State()).To(Equal(domain.EyeOpen))

				rec, err := registry.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).To(BeNil())

				Expect(supervisor.Start(context.Background())).To(Succeed())
			})
		})
	})

	Describe("Stop", func() {
		Context("when the worker ignores SIGTERM", func() {
			It("should force kill it after the timeout", func() {
				path, err := worker.Stubborn("vision-stubborn")
				Expect(err).NotTo(HaveOccurred())

				supervisor = newSupervisor(path, 200*time.Millisecond)
				Expect(supervisor.Start(context.Background())).To(Succeed())
				pid := supervisor.PID()
				Expect(pid).To(BeNumerically(">", 0))

				// Let the trap install before signalling.
				time.Sleep(200 * time.Millisecond)

				start := time.Now()
				Expect(supervisor.Stop()).To(Succeed())
				Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))

				Eventually(func() bool { return pm.IsRunning(pid) }, 2*time.Second, 20*time.Millisecond).Should(BeFalse())
				Expect(supervisor.Running()).To(BeFalse())
			})
		})

		Context("when the worker is recorded", func() {
			It("should clear the registry", func() {
				path, err := worker.Streaming("vision-recorded")
				Expect(err).NotTo(HaveOccurred())

				supervisor = newSupervisor(path, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				rec, err := registry.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).NotTo(BeNil())
				Expect(rec.PID).To(Equal(supervisor.PID()))
				Expect(rec.HostPID).To(Equal(os.Getpid()))

				Expect(supervisor.Stop()).To(Succeed())

				rec, err = registry.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).To(BeNil())
			})
		})
	})

	Describe("Stale workers", func() {
		var stale *exec.Cmd

		AfterEach(func() {
			if stale != nil && stale.Process != nil {
				_ = stale.Process.Kill()
			}
		})

		Context("when a dead host left a worker running", func() {
			It("should reap it before spawning", func() {
				stalePath, err := worker.Streaming("vision-stale")
				Expect(err).NotTo(HaveOccurred())
				stale, err = worker.Spawn(stalePath)
				Expect(err).NotTo(HaveOccurred())
				go func() { _ = stale.Wait() }()

				deadHost, err := fixtures.DeadPID()
				Expect(err).NotTo(HaveOccurred())

				Eventually(func() bool { return pm.IsRunning(stale.Process.Pid) }, time.Second).Should(BeTrue())
				Expect(registry.Save(domain.WorkerRecord{
					PID:        stale.Process.Pid,
					Executable: stalePath,
					StartedAt:  time.Now().Unix(),
					HostPID:    deadHost,
				})).To(Succeed())

				freshPath, err := worker.Streaming("vision-fresh")
				Expect(err).NotTo(HaveOccurred())
				supervisor = newSupervisor(freshPath, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				Eventually(func() bool { return pm.IsRunning(stale.Process.Pid) }, 2*time.Second, 20*time.Millisecond).Should(BeFalse())

				rec, err := registry.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).NotTo(BeNil())
				Expect(rec.PID).To(Equal(supervisor.PID()))
			})
		})

		Context("when the recorded PID belongs to another program", func() {
			It("should leave it alone", func() {
				otherPath, err := worker.Streaming("unrelated-tool")
				Expect(err).NotTo(HaveOccurred())
				stale, err = worker.Spawn(otherPath)
				Expect(err).NotTo(HaveOccurred())
				go func() { _ = stale.Wait() }()

				deadHost, err := fixtures.DeadPID()
				Expect(err).NotTo(HaveOccurred())

				Eventually(func() bool { return pm.IsRunning(stale.Process.Pid) }, time.Second).Should(BeTrue())
				Expect(registry.Save(domain.WorkerRecord{
					PID:        stale.Process.Pid,
					Executable: filepath.Join(tmpDir, "vision-gone"),
					HostPID:    deadHost,
				})).To(Succeed())

				freshPath, err := worker.Streaming("vision-fresh")
				Expect(err).NotTo(HaveOccurred())
				supervisor = newSupervisor(freshPath, time.Second)
				Expect(supervisor.Start(context.Background())).To(Succeed())

				Consistently(func() bool { return pm.IsRunning(stale.Process.Pid) }, 300*time.Millisecond, 50*time.Millisecond).Should(BeTrue())
			})
		})
	})
})
