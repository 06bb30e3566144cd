/*
Package workers sizes concurrency limits from the CPUs actually available to
the container.

GOMAXPROCS follows cgroup CPU limits, whereas runtime.NumCPU reports the host.
Two limits are derived from it:

	workers.TranscodeSlots(cfg.MaxTranscodes) // ffmpeg semaphore size
	workers.ConnsPerHost()                    // outbound idle pool per host
*/
package workers
