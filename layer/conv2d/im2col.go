package conv2d

// im2col unrolls one (c, h, w) image into a (c*k*k, h*w) matrix for a
// stride 1 convolution with k/2 zero padding.
func im2col(x []float32, c, h, w, k int, col []float32) {
	pad := k / 2
	hw := h * w
	for ci := 0; ci < c; ci++ {
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := (ci*k+ki)*k + kj
				dst := col[row*hw : (row+1)*hw]
				for y := 0; y < h; y++ {
					sy := y + ki - pad
					line := dst[y*w : (y+1)*w]
					if sy < 0 || sy >= h {
						for j := range line {
							line[j] = 0
						}
						continue
					}
					src := x[(ci*h+sy)*w : (ci*h+sy+1)*w]
					for xx := range line {
						sx := xx + kj - pad
						if sx < 0 || sx >= w {
							line[xx] = 0
						} else {
							line[xx] = src[sx]
						}
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it adds the columns back into the image gradient dx.
func col2im(col []float32, c, h, w, k int, dx []float32) {
	pad := k / 2
	hw := h * w
	for ci := 0; ci < c; ci++ {
		for ki := 0; ki < k; ki++ {
			for kj := 0; kj < k; kj++ {
				row := (ci*k+ki)*k + kj
				src := col[row*hw : (row+1)*hw]
				for y := 0; y < h; y++ {
					sy := y + ki - pad
					if sy < 0 || sy >= h {
						continue
					}
					dst := dx[(ci*h+sy)*w : (ci*h+sy+1)*w]
					for xx := 0; xx < w; xx++ {
						sx := xx + kj - pad
						if sx >= 0 && sx < w {
							dst[sx] += src[y*w+xx]
						}
					}
				}
			}
		}
	}
}
