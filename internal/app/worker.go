/**
 * @description
 * This file runs the side-effect pipeline worker: a single goroutine
 * draining the job queue so budget and fraud checks never sit on the
 * request path. The worker recovers from panics in individual jobs; one
 * bad expense must not stop the pipeline for everyone else.
 */

package app

func (s *Service) runSideEffectWorker() {
	defer close(s.workerDone)
	for job := range s.jobs {
		s.processJob(job)
	}
}

func (s *Service) processJob(job sideEffectJob) {
	defer s.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("side-effect job panicked", "expense_id", job.expense.ID, "panic", r)
		}
	}()
	s.runSideEffects(job)
}
