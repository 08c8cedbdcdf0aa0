package network

import (
	"math"

	"github.com/automoto/rewind/shared/messages"
	"github.com/go-gl/mathgl/mgl64"
)

const predictionBufferSize = 64

// InputRecord stores an input alongside the position predicted after applying it.
type InputRecord struct {
	Input     messages.PlayerInput
	Predicted mgl64.Vec3
}

// PredictionBuffer is a ring of recent inputs and their predicted outcomes,
// kept until the server acknowledges them through LastSequence.
type PredictionBuffer struct {
	history [predictionBufferSize]InputRecord
	nextSeq uint32
}

// Store saves an input and the resulting predicted position.
func (pb *PredictionBuffer) Store(input messages.PlayerInput, predicted mgl64.Vec3) {
	pb.history[input.Sequence%predictionBufferSize] = InputRecord{
		Input:     input,
		Predicted: predicted,
	}
	pb.nextSeq = input.Sequence + 1
}

// Get returns the record for seq, or false once its slot has been reused.
func (pb *PredictionBuffer) Get(seq uint32) (InputRecord, bool) {
	record := pb.history[seq%predictionBufferSize]
	if record.Input.Sequence != seq {
		return InputRecord{}, false
	}
	return record, true
}

func (pb *PredictionBuffer) NextSeq() uint32 {
	return pb.nextSeq
}

// Unacknowledged returns the stored inputs newer than lastAcked, oldest first.
func (pb *PredictionBuffer) Unacknowledged(lastAcked uint32) []InputRecord {
	var results []InputRecord
	for seq := lastAcked + 1; seq < pb.nextSeq; seq++ {
		if record, ok := pb.Get(seq); ok {
			results = append(results, record)
		}
	}
	return results
}

// Reconcile replays the unacknowledged inputs on top of the server's
// position for lastAcked and returns the corrected prediction.
func (pb *PredictionBuffer) Reconcile(lastAcked uint32, server mgl64.Vec3, speed, dt float64) mgl64.Vec3 {
	pos := server
	for _, record := range pb.Unacknowledged(lastAcked) {
		pos = Predict(pos, record.Input, speed, dt)
	}
	return pos
}

// PredictionError is the distance between the predicted and the server
// position for seq.
func (pb *PredictionBuffer) PredictionError(seq uint32, server mgl64.Vec3) float64 {
	record, ok := pb.Get(seq)
	if !ok {
		return 0
	}
	return record.Predicted.Sub(server).Len()
}

// Predict applies one input for dt seconds the way the server moves a
// character, minus collision: MoveX along the yaw, MoveY strafing left.
func Predict(pos mgl64.Vec3, in messages.PlayerInput, speed, dt float64) mgl64.Vec3 {
	sin, cos := math.Sincos(in.Yaw)
	dir := mgl64.Vec2{cos, sin}.Mul(in.MoveX).Add(mgl64.Vec2{-sin, cos}.Mul(in.MoveY))
	if l := dir.Len(); l > 1 {
		dir = dir.Mul(1 / l)
	}
	step := dir.Mul(speed * dt)
	return mgl64.Vec3{pos.X() + step.X(), pos.Y() + step.Y(), pos.Z()}
}
