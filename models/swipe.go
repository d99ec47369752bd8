package models

// SwipeEvent is the raw swipe signal produced by the client app.
// Only positive swipes are turned into preferences; negative ones are counted elsewhere.
type SwipeEvent struct {
	ActorID    string `json:"actorId" validate:"required,max=128"`
	TargetID   string `json:"targetId" validate:"required,max=128"`
	IsPositive bool   `json:"isPositive"`
}
