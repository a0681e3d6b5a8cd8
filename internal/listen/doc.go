// Package listen implements the real-time half of voxgate: turning captured
// audio frames into closed utterances.
//
// Two execution contexts share two objects:
//
//   - The capture thread calls [Ingest.Process] for every device frame. It
//     converts the frame, runs the [SpeechGate] (the only owner of the voice
//     classifier session), updates the [SpeechState], and appends to the
//     [UtteranceBuffer] while speech is active.
//   - One [Worker] goroutine drains the buffer once speech has ended and hands
//     the utterance to the transcriber.
//
// Lock order is always SpeechState before UtteranceBuffer. The capture thread
// never holds both: it releases the state lock before appending. The worker
// holds the state read lock across its drain so that "not speaking" and
// "drain" are atomic with respect to a speech-start transition.
package listen
