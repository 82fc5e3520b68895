package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"membership_app_echo/internal/models"
	"membership_app_echo/internal/services"
)

// ActivatePurchase grants the entitlement a SUCCESS transaction paid for.
// It is re-entrant: every grant is create-if-absent keyed by its natural
// key, so a retry after a partial failure completes the remaining work
// instead of duplicating what already succeeded.
func (j *Job) ActivatePurchase(ctx context.Context, trx *models.Transaction) error {
	switch trx.Type {
	case models.TransactionTypeMembership:
		return j.activateMembership(ctx, trx)
	case models.TransactionTypeCourse:
		return j.activateCourse(ctx, trx)
	case models.TransactionTypeProduct:
		return j.activateProduct(ctx, trx)
	}
	return nil
}

func (j *Job) activateMembership(ctx context.Context, trx *models.Transaction) error {
	log := j.Log.WithField("transactionId", trx.ID)

	// Prefer the direct foreign key, fall back to the metadata bag
	var membershipID uint
	if trx.MembershipID != nil {
		membershipID = *trx.MembershipID
	} else if id, ok := metaUint(trx.Metadata, "membershipId"); ok {
		membershipID = id
		// Backfill the column so future reads don't depend on metadata
		if err := j.DB.WithContext(ctx).Model(&models.Transaction{}).
			Where("id = ?", trx.ID).
			Update("membership_id", membershipID).Error; err != nil {
			log.Warnf("failed to backfill membership id: %v", err)
		} else {
			trx.MembershipID = &membershipID
		}
	}
	if membershipID == 0 {
		log.Warn("no membership id on transaction or metadata, skipping activation")
		return nil
	}

	now := j.now()

	// Already activated for this exact purchase: just make sure it is
	// active again and stop. Cascades are not re-run.
	var existing models.UserMembership
	err := j.DB.WithContext(ctx).
		Where("user_id = ? AND transaction_id = ?", trx.UserID, trx.ID).
		First(&existing).Error
	if err == nil {
		return j.DB.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
			"status":       models.UserMembershipStatusActive,
			"is_active":    true,
			"activated_at": &now,
		}).Error
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check existing membership: %w", err)
	}

	var membership models.Membership
	if err := j.DB.WithContext(ctx).First(&membership, membershipID).Error; err != nil {
		return fmt.Errorf("membership %d not found: %w", membershipID, err)
	}

	endDate := membership.ExpiryFrom(now)
	grant := models.UserMembership{
		UserID:        trx.UserID,
		MembershipID:  membershipID,
		TransactionID: &trx.ID,
		Status:        models.UserMembershipStatusActive,
		IsActive:      true,
		ActivatedAt:   &now,
		StartDate:     now,
		EndDate:       endDate,
		Price:         trx.Amount,
	}
	if err := j.DB.WithContext(ctx).Create(&grant).Error; err != nil {
		return fmt.Errorf("failed to create user membership: %w", err)
	}

	// Everything below is best-effort: the paying user keeps their access
	// even when a downstream integration is unavailable.
	j.syncToList(ctx, trx, membership.MailketingListID, membership.AutoAddToList, "membership", membership.Name)
	j.cascadeGrants(ctx, trx, membershipID)
	j.distributeRevenue(ctx, trx, membershipID)
	j.sendPaymentSuccessEmail(ctx, trx, membership.Name)
	j.sendMembershipActivationEmail(ctx, trx, &membership, now, endDate)

	return nil
}

func (j *Job) activateCourse(ctx context.Context, trx *models.Transaction) error {
	log := j.Log.WithField("transactionId", trx.ID)

	if trx.CourseID == nil {
		log.Warn("no course id on transaction, skipping activation")
		return nil
	}
	courseID := *trx.CourseID

	var existing models.CourseEnrollment
	err := j.DB.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", trx.UserID, courseID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check existing enrollment: %w", err)
	}

	enrollment := models.CourseEnrollment{
		UserID:        trx.UserID,
		CourseID:      courseID,
		TransactionID: &trx.ID,
		Progress:      0,
	}
	if err := j.DB.WithContext(ctx).Create(&enrollment).Error; err != nil {
		return fmt.Errorf("failed to create course enrollment: %w", err)
	}

	itemName := "Course"
	var course models.Course
	if err := j.DB.WithContext(ctx).First(&course, courseID).Error; err == nil {
		itemName = course.Title
		j.syncToList(ctx, trx, course.MailketingListID, course.AutoAddToList, "course", course.Title)
	}

	j.sendPaymentSuccessEmail(ctx, trx, itemName)
	return nil
}

func (j *Job) activateProduct(ctx context.Context, trx *models.Transaction) error {
	log := j.Log.WithField("transactionId", trx.ID)

	productID, ok := metaUint(trx.Metadata, "productId")
	if !ok {
		log.Warn("no product id in transaction metadata, skipping activation")
		return nil
	}

	var existing models.UserProduct
	err := j.DB.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", trx.UserID, productID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check existing product grant: %w", err)
	}

	now := j.now()
	grant := models.UserProduct{
		UserID:        trx.UserID,
		ProductID:     productID,
		TransactionID: &trx.ID,
		Price:         trx.Amount,
		PurchaseDate:  now,
		IsActive:      true,
	}
	if err := j.DB.WithContext(ctx).Create(&grant).Error; err != nil {
		return fmt.Errorf("failed to create user product: %w", err)
	}

	itemName := "Product"
	var product models.Product
	if err := j.DB.WithContext(ctx).First(&product, productID).Error; err == nil {
		itemName = product.Name
		j.syncToList(ctx, trx, product.MailketingListID, product.AutoAddToList, "product", product.Name)
	}

	j.sendPaymentSuccessEmail(ctx, trx, itemName)
	return nil
}

// cascadeGrants provisions every group, course and product bundled under the
// membership tier. Each grant is create-if-absent, so overlapping cascades
// from other tiers are harmless; individual failures are logged and skipped.
func (j *Job) cascadeGrants(ctx context.Context, trx *models.Transaction, membershipID uint) {
	log := j.Log.WithField("transactionId", trx.ID)
	now := j.now()

	var groups []models.MembershipGroup
	j.DB.WithContext(ctx).Where("membership_id = ?", membershipID).Find(&groups)
	for _, mg := range groups {
		member := models.GroupMember{
			GroupID: mg.GroupID,
			UserID:  trx.UserID,
			Role:    models.GroupMemberRoleMember,
		}
		if err := j.DB.WithContext(ctx).
			Where("group_id = ? AND user_id = ?", mg.GroupID, trx.UserID).
			FirstOrCreate(&member).Error; err != nil {
			log.Warnf("failed to join group %d: %v", mg.GroupID, err)
		}
	}

	var courses []models.MembershipCourse
	j.DB.WithContext(ctx).Where("membership_id = ?", membershipID).Find(&courses)
	for _, mc := range courses {
		enrollment := models.CourseEnrollment{
			UserID:   trx.UserID,
			CourseID: mc.CourseID,
		}
		if err := j.DB.WithContext(ctx).
			Where("user_id = ? AND course_id = ?", trx.UserID, mc.CourseID).
			FirstOrCreate(&enrollment).Error; err != nil {
			log.Warnf("failed to enroll course %d: %v", mc.CourseID, err)
		}
	}

	var products []models.MembershipProduct
	j.DB.WithContext(ctx).Where("membership_id = ?", membershipID).Find(&products)
	for _, mp := range products {
		grant := models.UserProduct{
			UserID:        trx.UserID,
			ProductID:     mp.ProductID,
			TransactionID: &trx.ID,
			Price:         decimal.Zero, // free as part of the membership
			PurchaseDate:  now,
			IsActive:      true,
		}
		if err := j.DB.WithContext(ctx).
			Where("user_id = ? AND product_id = ?", trx.UserID, mp.ProductID).
			FirstOrCreate(&grant).Error; err != nil {
			log.Warnf("failed to grant product %d: %v", mp.ProductID, err)
		}
	}

	log.Infof("cascade granted %d groups, %d courses, %d products", len(groups), len(courses), len(products))
}

func (j *Job) distributeRevenue(ctx context.Context, trx *models.Transaction, membershipID uint) {
	if j.Revenue == nil {
		return
	}

	opts := services.SplitOptions{
		Amount:        trx.Amount,
		Type:          trx.Type,
		MembershipID:  &membershipID,
		TransactionID: &trx.ID,
	}
	if affiliateID, ok := metaUint(trx.Metadata, "affiliateId"); ok {
		opts.AffiliateID = &affiliateID
	}

	if err := j.Revenue.Distribute(ctx, opts); err != nil {
		j.Log.WithField("transactionId", trx.ID).Errorf("revenue distribution failed: %v", err)
	}
}

// syncToList subscribes the buyer to the item's mailing list and tracks the
// list id on the user record, appending only when absent.
func (j *Job) syncToList(ctx context.Context, trx *models.Transaction, listID string, autoAdd bool, purchaseType, itemName string) {
	if j.Lists == nil || !autoAdd || listID == "" {
		return
	}
	log := j.Log.WithField("transactionId", trx.ID)

	email := trx.User.Email
	if email == "" {
		email = trx.CustomerEmail
	}
	phone := trx.User.Phone
	if phone == "" {
		phone = trx.CustomerPhone
	}

	attrs := services.ListAttributes{
		Name:           buyerName(trx),
		Phone:          phone,
		PurchaseType:   purchaseType,
		PurchaseItem:   itemName,
		PurchaseDate:   j.now().Format("2006-01-02"),
		PurchaseAmount: trx.Amount.StringFixed(2),
	}
	if err := j.Lists.AddUserToList(ctx, email, listID, attrs); err != nil {
		log.Warnf("mailing list sync failed: %v", err)
		return
	}

	if !trx.User.HasMailketingList(listID) {
		lists := append(trx.User.MailketingLists, listID)
		if err := j.DB.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", trx.UserID).
			Updates(models.User{MailketingLists: lists}).Error; err != nil {
			log.Warnf("failed to track mailing list on user: %v", err)
		} else {
			trx.User.MailketingLists = lists
		}
	}
}

func (j *Job) sendPaymentSuccessEmail(ctx context.Context, trx *models.Transaction, itemName string) {
	if j.Mailer == nil {
		return
	}

	email := services.PaymentSuccessEmail(services.PaymentSuccessData{
		UserName:        buyerName(trx),
		Amount:          trx.Amount,
		InvoiceNumber:   invoiceNumber(trx),
		PaymentMethod:   paymentMethod(trx),
		TransactionDate: trx.CreatedAt.Format("2 January 2006"),
		ItemName:        itemName,
	})

	to := trx.CustomerEmail
	if to == "" {
		to = trx.User.Email
	}
	tags := []string{"payment", "success", "auto-checked", strings.ToLower(string(trx.Type))}
	if err := j.Mailer.SendEmail(ctx, to, email.Subject, email.HTML, tags); err != nil {
		j.Log.WithField("transactionId", trx.ID).Warnf("payment success email failed: %v", err)
	}
}

func (j *Job) sendMembershipActivationEmail(ctx context.Context, trx *models.Transaction, membership *models.Membership, start, end time.Time) {
	if j.Mailer == nil {
		return
	}

	email := services.MembershipActivationEmail(services.MembershipActivationData{
		UserName:           buyerName(trx),
		MembershipName:     membership.Name,
		MembershipDuration: string(membership.Duration),
		StartDate:          start.Format("2 January 2006"),
		EndDate:            end.Format("2 January 2006"),
		Price:              trx.Amount,
		InvoiceNumber:      invoiceNumber(trx),
	})

	to := trx.CustomerEmail
	if to == "" {
		to = trx.User.Email
	}
	tags := []string{"membership", "activation", "auto-checked"}
	if err := j.Mailer.SendEmail(ctx, to, email.Subject, email.HTML, tags); err != nil {
		j.Log.WithField("transactionId", trx.ID).Warnf("membership activation email failed: %v", err)
	}
}

func buyerName(trx *models.Transaction) string {
	if trx.CustomerName != "" {
		return trx.CustomerName
	}
	if trx.User.Name != "" {
		return trx.User.Name
	}
	return "Member"
}

func invoiceNumber(trx *models.Transaction) string {
	if trx.ExternalID != nil && *trx.ExternalID != "" {
		return *trx.ExternalID
	}
	return strconv.FormatUint(uint64(trx.ID), 10)
}

func paymentMethod(trx *models.Transaction) string {
	if trx.PaymentMethod != "" {
		return trx.PaymentMethod
	}
	return "Online Payment"
}

// metaUint pulls a numeric id out of the free-form metadata bag. JSON
// round-trips leave numbers as float64, but direct writes may store native
// ints, so try the common shapes.
func metaUint(meta map[string]interface{}, key string) (uint, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case float64:
		if v > 0 {
			return uint(v), true
		}
	case int:
		if v > 0 {
			return uint(v), true
		}
	case uint:
		if v > 0 {
			return v, true
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return uint(n), true
		}
	}
	return 0, false
}
