package service

import "errors"

// 业务错误。前四个是预期结果，直接返回给调用方；后两个属于运维故障，会以 error 级别记录。
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotParticipant     = errors.New("not a participant of this room")
	ErrForbidden          = errors.New("only the room creator may do this")
	ErrDrawingDisabled    = errors.New("drawing is disabled in this room")
	ErrValidation         = errors.New("validation failed")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique room code")
	ErrInternalServer     = errors.New("internal server error")
)

// IsNotFound 房间、参与者或预览图不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrPreviewNotFound)
}

// ErrPreviewNotFound 房间还没有生成过预览图
var ErrPreviewNotFound = errors.New("preview not rendered yet")
