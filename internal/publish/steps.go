package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"reelpress/internal/logging"
	"reelpress/internal/services"
)

// Composer surface strings. These are platform facts, not translatable UI.
const (
	fileInputSelector = `input[type="file"]`
	captionSelector   = `.zone-container`
	titlePlaceholder  = `input[placeholder*="作品标题"]`
	scheduleInput     = `.semi-input[placeholder="日期和时间"]`

	textReupload     = "重新上传"
	textUploadFailed = "上传失败"
	textCoverPicker  = "选择封面"
	textCoverConfirm = "完成"
	textCart         = "购物车"
	textAddLink      = "添加链接"
	textEditProduct  = "编辑商品"
	textEditDone     = "完成编辑"
	textQuotaFull    = "额度已满"
	textShortTitle   = "商品短标题"
	textSchedule     = "定时发布"
	textPublish      = "发布"
	textDismiss      = "我知道了"
)

func (w *workflowRun) timeout(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

func (w *workflowRun) authenticate(ctx context.Context) error {
	if err := w.session.ImportCookies(ctx); err != nil {
		return err
	}
	if w.runner.browser.SkipCookieCheck {
		w.logger.Debug("login probe skipped by configuration")
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, w.timeout(w.runner.workflow.CookieProbeTimeout, 15*time.Second))
	defer cancel()
	return w.session.ProbeLogin(probeCtx)
}

func (w *workflowRun) openComposer(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.Navigate(composerURL),
		chromedp.WaitReady(fileInputSelector, chromedp.ByQuery),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "open composer", "", err)
	}
	return nil
}

func (w *workflowRun) ingestFile(ctx context.Context) error {
	err := chromedp.Run(ctx,
		chromedp.SetUploadFiles(fileInputSelector, []string{w.job.VideoPath}, chromedp.ByQuery),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "ingest file", w.job.VideoPath, err)
	}
	return nil
}

// awaitComposerReady waits for the post-ingest redirect. The platform serves
// one of two publish surfaces; both are acceptable.
func (w *workflowRun) awaitComposerReady(ctx context.Context) error {
	timeout := w.timeout(w.runner.workflow.ComposerReadyTimeout, 2*time.Minute)
	return w.waitUntil(ctx, "await composer ready", timeout, func(ctx context.Context) (bool, error) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return false, services.Wrap(services.ErrTransient, "publish", "read composer location", "", err)
		}
		return strings.Contains(location, publishSurfaceA) || strings.Contains(location, publishSurfaceB), nil
	})
}

func (w *workflowRun) fillMetadata(ctx context.Context) error {
	title := ClipTitle(w.job.Title)

	hasTitleInput, err := w.evalBool(ctx, fmt.Sprintf("document.querySelector(%q) !== null", titlePlaceholder))
	if err != nil {
		return err
	}

	var actions []chromedp.Action
	if hasTitleInput {
		actions = append(actions,
			chromedp.Click(titlePlaceholder, chromedp.ByQuery),
			chromedp.SendKeys(titlePlaceholder, title, chromedp.ByQuery),
		)
	} else {
		// Older composer variant puts the title in the caption editor.
		actions = append(actions,
			chromedp.Click(captionSelector, chromedp.ByQuery),
			chromedp.SendKeys(captionSelector, title+kb.Enter, chromedp.ByQuery),
		)
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "enter title", "", err)
	}

	// Tags go into the caption editor one at a time, in sidecar order. The
	// editor tokenizes each on the trailing space.
	for _, topic := range w.job.Topics {
		if topic == "" {
			continue
		}
		err := chromedp.Run(ctx,
			chromedp.Click(captionSelector, chromedp.ByQuery),
			chromedp.SendKeys(captionSelector, "#"+topic+" ", chromedp.ByQuery),
		)
		if err != nil {
			return services.Wrap(services.ErrTransient, "publish", "enter tag", topic, err)
		}
	}
	w.logger.Debug("metadata entered",
		logging.String("title", title),
		logging.Int("tags", len(w.job.Topics)),
	)
	return nil
}

// awaitUploadComplete polls until the composer offers the re-upload control,
// which only appears once the file is fully processed. A platform-side upload
// failure triggers exactly one resubmission.
func (w *workflowRun) awaitUploadComplete(ctx context.Context) error {
	timeout := w.timeout(w.runner.workflow.UploadTimeout, 15*time.Minute)
	resubmitted := false
	return w.waitUntil(ctx, "await upload complete", timeout, func(ctx context.Context) (bool, error) {
		failed, err := w.textPresent(ctx, textUploadFailed)
		if err != nil {
			return false, err
		}
		if failed {
			if resubmitted {
				return false, services.Wrap(services.ErrTransient, "publish", "await upload complete",
					"platform rejected the upload twice", nil)
			}
			resubmitted = true
			w.logger.Warn("platform reported upload failure, resubmitting once")
			if err := w.ingestFile(ctx); err != nil {
				return false, err
			}
			return false, nil
		}
		return w.textPresent(ctx, textReupload)
	})
}

func (w *workflowRun) setThumbnail(ctx context.Context) error {
	if w.job.ThumbnailPath == "" {
		return nil
	}

	err := chromedp.Run(ctx,
		w.clickText(textCoverPicker),
		chromedp.WaitReady(`.semi-modal `+fileInputSelector, chromedp.ByQuery),
		chromedp.SetUploadFiles(`.semi-modal `+fileInputSelector, []string{w.job.ThumbnailPath}, chromedp.ByQuery),
		w.clickText(textCoverConfirm),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "set thumbnail", w.job.ThumbnailPath, err)
	}
	return nil
}

type productResult int

const (
	productSkipped productResult = iota
	productAttached
	productQuotaReached
	productError
)

// attachProduct runs the product-card dialog. The result is four-way:
// skipped (no link on the job), attached, quota reached, or dialog error.
// Quota and error abort the whole workflow before publish confirmation.
func (w *workflowRun) attachProduct(ctx context.Context) (productResult, error) {
	if w.job.ProductLink == "" {
		return productSkipped, nil
	}
	w.logger.Debug("attaching product", logging.String("product_link", w.job.ProductLink))

	err := chromedp.Run(ctx,
		w.clickText(textCart),
		chromedp.WaitReady(`input[placeholder*="商品链接"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[placeholder*="商品链接"]`, w.job.ProductLink, chromedp.ByQuery),
		w.clickText(textAddLink),
	)
	if err != nil {
		return productError, services.Wrap(services.ErrTransient, "publish", "open product dialog", "", err)
	}

	timeout := w.timeout(w.runner.workflow.ProductDialogTimeout, 15*time.Second)
	var result productResult
	err = w.waitUntil(ctx, "await product dialog", timeout, func(ctx context.Context) (bool, error) {
		quota, err := w.textPresent(ctx, textQuotaFull)
		if err != nil {
			return false, err
		}
		if quota {
			result = productQuotaReached
			return true, nil
		}
		editable, err := w.textPresent(ctx, textEditProduct)
		if err != nil {
			return false, err
		}
		if editable {
			result = productAttached
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if errors.Is(err, services.ErrTimeout) {
			// The dialog neither confirmed nor reported quota; treat as a
			// dialog error so publish never fires on an ambiguous card.
			return productError, nil
		}
		return productError, err
	}
	if result != productAttached {
		return result, nil
	}

	shortTitle := w.job.ProductShortTitle
	actions := []chromedp.Action{w.clickText(textEditProduct)}
	if shortTitle != "" {
		actions = append(actions,
			chromedp.WaitReady(fmt.Sprintf(`input[placeholder*=%q]`, textShortTitle), chromedp.ByQuery),
			chromedp.SendKeys(fmt.Sprintf(`input[placeholder*=%q]`, textShortTitle), shortTitle, chromedp.ByQuery),
		)
	}
	actions = append(actions, w.clickText(textEditDone))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return productError, services.Wrap(services.ErrTransient, "publish", "finish product card", "", err)
	}
	return productAttached, nil
}

func (w *workflowRun) setSchedule(ctx context.Context) error {
	if w.job.PublishAt == nil || !w.job.PublishAt.After(time.Now()) {
		w.logger.Debug("publishing immediately")
		return nil
	}

	if err := w.dismissDialogs(ctx); err != nil {
		return err
	}

	stamp := FormatSchedule(*w.job.PublishAt)
	err := chromedp.Run(ctx,
		w.clickText(textSchedule),
		chromedp.WaitReady(scheduleInput, chromedp.ByQuery),
		chromedp.Click(scheduleInput, chromedp.ByQuery),
		chromedp.SendKeys(scheduleInput, stamp+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "set schedule", stamp, err)
	}
	w.logger.Debug("schedule set", logging.String("publish_at", stamp))
	return nil
}

func (w *workflowRun) confirmPublish(ctx context.Context) (string, error) {
	if err := chromedp.Run(ctx, w.clickText(textPublish)); err != nil {
		return "", services.Wrap(services.ErrTransient, "publish", "confirm publish", "", err)
	}

	timeout := w.timeout(w.runner.workflow.PublishTimeout, 3*time.Minute)
	var manageURL string
	err := w.waitUntil(ctx, "await publish confirmation", timeout, func(ctx context.Context) (bool, error) {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return false, services.Wrap(services.ErrTransient, "publish", "read location", "", err)
		}
		if strings.Contains(location, manageSurface) {
			manageURL = location
			return true, nil
		}
		return false, nil
	})
	return manageURL, err
}

// dismissDialogs closes any blocking announcement dialogs before the
// schedule controls are touched.
func (w *workflowRun) dismissDialogs(ctx context.Context) error {
	js := fmt.Sprintf(`(() => {
        let clicked = 0;
        for (const el of document.querySelectorAll('button, .semi-button')) {
            if (el.innerText && el.innerText.trim() === %q) { el.click(); clicked++; }
        }
        return clicked;
    })()`, textDismiss)

	var clicked int
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "dismiss dialogs", "", err)
	}
	if clicked > 0 {
		w.logger.Debug("dismissed blocking dialogs", logging.Int("count", clicked))
	}
	return nil
}

func (w *workflowRun) clickText(text string) chromedp.Action {
	return chromedp.Click(fmt.Sprintf(`//*[text()=%q]`, text), chromedp.BySearch)
}

func (w *workflowRun) textPresent(ctx context.Context, text string) (bool, error) {
	return w.evalBool(ctx, fmt.Sprintf("document.body !== null && document.body.innerText.indexOf(%q) !== -1", text))
}

func (w *workflowRun) evalBool(ctx context.Context, expr string) (bool, error) {
	var result bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &result)); err != nil {
		return false, services.Wrap(services.ErrTransient, "publish", "evaluate page state", "", err)
	}
	return result, nil
}
