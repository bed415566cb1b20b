package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go-cartsync/cartsync"
	"go-cartsync/middleware"
	"go-cartsync/models"
	"go-cartsync/store"
	"go-cartsync/utils"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// UserController handles user-related requests
type UserController struct {
	Collection *mongo.Collection
	Guests     middleware.GuestResolver
	Merger     CartMerger
	Logger     *zap.Logger
	Timeout    time.Duration
}

// NewUserController creates a new UserController
func NewUserController(db *mongo.Database, guests middleware.GuestResolver, merger CartMerger, logger *zap.Logger) *UserController {
	return &UserController{
		Collection: db.Collection(store.UsersCollection),
		Guests:     guests,
		Merger:     merger,
		Logger:     logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginResponse struct {
	Token      string                `json:"token"`
	Merge      *cartsync.MergeResult `json:"merge,omitempty"`
	MergeError string                `json:"merge_error,omitempty"`
}

func (uc *UserController) logger() *zap.Logger {
	return utils.OrNop(uc.Logger)
}

func (uc *UserController) context(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := uc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

// Register handles user registration
func (uc *UserController) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.WriteError(w, utils.NewInvalidInput("Invalid registration", err.Error()))
		return
	}

	// Check if user already exists
	ctx, cancel := uc.context(r)
	defer cancel()
	count, err := uc.Collection.CountDocuments(ctx, bson.M{"email": req.Email})
	if err != nil {
		uc.logger().Error("failed to look up user", zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if count > 0 {
		http.Error(w, "User already exists", http.StatusBadRequest)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}
	user := models.User{
		Name:      req.Name,
		Email:     req.Email,
		Password:  string(hashedPassword),
		Role:      "user",
		CreatedAt: time.Now().UTC(),
	}

	res, err := uc.Collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		http.Error(w, "User already exists", http.StatusBadRequest)
		return
	}
	if err != nil {
		uc.logger().Error("failed to create user", zap.Error(err))
		http.Error(w, "Error creating user", http.StatusInternalServerError)
		return
	}
	uc.logger().Info("user registered", zap.Any("user_id", res.InsertedID))

	utils.WriteJSON(w, http.StatusCreated, "User registered successfully")
}

// Login handles user authentication. A guest token sent along with the
// credentials folds that guest cart into the user's cart.
func (uc *UserController) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid input", http.StatusBadRequest)
		return
	}

	ctx, cancel := uc.context(r)
	defer cancel()
	var user models.User
	err := uc.Collection.FindOne(ctx, bson.M{"email": creds.Email}).Decode(&user)
	if err != nil {
		http.Error(w, "User not found", http.StatusUnauthorized)
		return
	}

	// Compare the hashed password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := utils.GenerateJWT(user.ID, user.Email, user.Role)
	if err != nil {
		http.Error(w, "Error generating token", http.StatusInternalServerError)
		return
	}

	resp := loginResponse{Token: token}
	if guestToken := r.Header.Get(middleware.GuestTokenHeader); guestToken != "" {
		resp.Merge, err = uc.mergeGuestCart(ctx, user, guestToken)
		if err != nil {
			// the login itself succeeded; the client can retry the merge
			uc.logger().Warn("guest cart merge on login failed",
				zap.String("user_id", user.ID.Hex()), zap.Error(err))
			resp.MergeError = err.Error()
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (uc *UserController) mergeGuestCart(ctx context.Context, user models.User, guestToken string) (*cartsync.MergeResult, error) {
	session, err := uc.Guests.Resolve(ctx, guestToken)
	if err != nil {
		return nil, err
	}
	return uc.Merger.Merge(ctx, cartsync.MergeRequest{
		UserID:         user.ID,
		GuestSessionID: session.ID,
		Strategy:       cartsync.StrategyCombine,
		IdempotencyKey: "login:" + session.ID.Hex(),
	})
}

// GetProfile retrieves the authenticated user's profile
func (uc *UserController) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Could not parse user from context", http.StatusUnauthorized)
		return
	}
	userID, err := claims.UserObjectID()
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	ctx, cancel := uc.context(r)
	defer cancel()
	var user models.User
	err = uc.Collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}
